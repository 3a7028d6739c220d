// Command stylize applies an effect to an image or to procedural noise and
// writes the result as PNG.
//
// Single frame:
//
//	stylize -in photo.jpg -effect dog -out dog.png
//
// Animated sequence of procedural noise through the CRT effect:
//
//	stylize -noise -set animate=true -effect crt -frames 60 -outdir frames/
//
// Parameters are set with -set id=value (repeatable) or loaded from a TOML
// preset with -preset.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	_ "github.com/gogpu/stylize/backend/cpu"
	_ "github.com/gogpu/stylize/backend/wgpu"
	"github.com/gogpu/stylize/effects"
	"github.com/gogpu/stylize/params"
	"github.com/gogpu/stylize/source"
	"github.com/gogpu/stylize/studio"
)

// assignments collects repeated -set id=value flags.
type assignments []string

func (a *assignments) String() string { return strings.Join(*a, ",") }

func (a *assignments) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("want id=value, got %q", v)
	}
	*a = append(*a, v)
	return nil
}

type options struct {
	in      string
	noise   bool
	effect  string
	preset  string
	out     string
	outdir  string
	frames  int
	fps     float64
	at      float64
	backend string
	width   int
	height  int
	list    bool
	verbose bool
	sets    assignments
	srcSets assignments
}

func main() {
	var o options
	flag.StringVar(&o.in, "in", "", "input image (PNG, JPEG, GIF, BMP, TIFF or WebP)")
	flag.BoolVar(&o.noise, "noise", false, "use procedural Perlin noise as the source")
	flag.StringVar(&o.effect, "effect", "", "effect to apply (see -list)")
	flag.StringVar(&o.preset, "preset", "", "TOML preset to apply")
	flag.StringVar(&o.out, "out", "out.png", "output PNG for a single frame")
	flag.StringVar(&o.outdir, "outdir", "", "directory for an animated sequence")
	flag.IntVar(&o.frames, "frames", 1, "number of frames to render")
	flag.Float64Var(&o.fps, "fps", 30, "frame rate of a sequence")
	flag.Float64Var(&o.at, "t", 0, "time of the first frame in seconds")
	flag.StringVar(&o.backend, "backend", "", "render backend: wgpu or cpu (default: best available)")
	flag.IntVar(&o.width, "width", 0, "noise width, or maximum image width")
	flag.IntVar(&o.height, "height", 0, "noise height, or maximum image height")
	flag.BoolVar(&o.list, "list", false, "list effects and their parameters")
	flag.BoolVar(&o.verbose, "v", false, "verbose logging")
	flag.Var(&o.sets, "set", "effect parameter id=value (repeatable)")
	flag.Var(&o.srcSets, "source-set", "source parameter id=value (repeatable)")
	flag.Parse()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	stylize.SetLogger(log)

	if err := run(o, log); err != nil {
		log.Error("stylize failed", "err", err)
		os.Exit(1)
	}
}

func run(o options, log *slog.Logger) error {
	b, err := openBackend(o.backend)
	if err != nil {
		return err
	}
	defer b.Close()

	if o.list {
		return list(b)
	}
	if o.in == "" && !o.noise && o.preset == "" {
		return errors.New("one of -in, -noise or -preset is required")
	}

	var studioOpts []studio.Option
	size := stylize.FrameSize{Width: uint32(max(o.width, 0)), Height: uint32(max(o.height, 0))}
	if size.Valid() {
		studioOpts = append(studioOpts, studio.WithMaxSize(size))
	}
	s, err := studio.New(b, studioOpts...)
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case o.in != "":
		err = s.OpenImage(o.in)
	case o.noise:
		var perlinOpts []source.PerlinOption
		if size.Valid() {
			perlinOpts = append(perlinOpts, source.WithPerlinSize(size))
		}
		err = s.UsePerlin(perlinOpts...)
	}
	if err != nil {
		return err
	}
	if o.preset != "" {
		if err := s.LoadPreset(o.preset); err != nil {
			return err
		}
	}
	if o.effect != "" && (s.Effect() == nil || s.Effect().Name() != o.effect) {
		if _, err := s.SelectEffect(o.effect); err != nil {
			return err
		}
	}
	if s.Source() == nil {
		return studio.ErrNoSource
	}
	if err := assign(s.Source().Params(), o.srcSets); err != nil {
		return err
	}
	if e := s.Effect(); e != nil {
		if err := assign(e.Params(), o.sets); err != nil {
			return err
		}
	} else if len(o.sets) > 0 {
		return errors.New("-set needs an effect")
	}

	if o.frames <= 1 && o.outdir == "" {
		if err := s.RenderAt(o.at); err != nil {
			return err
		}
		log.Info("writing frame", "path", o.out, "size", s.Size().String())
		return s.SaveSnapshot(o.out)
	}
	return sequence(s, o, log)
}

// sequence renders o.frames frames at o.fps into o.outdir. Time runs the
// way animated sessions advance it.
func sequence(s *studio.Studio, o options, log *slog.Logger) error {
	dir := o.outdir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	fps := o.fps
	if fps <= 0 {
		fps = 30
	}
	for i := range max(o.frames, 1) {
		t := o.at - float64(i)/fps
		if err := s.RenderAt(t); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		if err := s.SaveSnapshot(path); err != nil {
			return err
		}
		log.Debug("frame written", "path", path, "t", t)
	}
	log.Info("sequence written", "dir", dir, "frames", o.frames)
	return nil
}

func assign(set *params.Set, sets assignments) error {
	for _, kv := range sets {
		id, value, _ := strings.Cut(kv, "=")
		if err := set.SetText(id, value); err != nil {
			return err
		}
	}
	return nil
}

func openBackend(name string) (backend.RenderBackend, error) {
	if name == "" {
		return backend.InitDefault()
	}
	return backend.Init(name)
}

func list(b backend.RenderBackend) error {
	for _, name := range effects.Names() {
		e, err := effects.New(name, b)
		if err != nil {
			return err
		}
		fmt.Printf("%s", name)
		if e.Animated() {
			fmt.Printf(" (animated, %s)", e.Cadence())
		}
		fmt.Println()
		for _, p := range e.Params().Params() {
			if p.Kind == params.KindButton {
				fmt.Printf("  %-14s button\n", p.ID)
				continue
			}
			v, _ := e.Params().Value(p.ID)
			fmt.Printf("  %-14s %-7s %v\n", p.ID, p.Kind, v)
		}
		e.Close()
	}
	return nil
}
