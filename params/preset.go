package params

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Preset is a saved selection of an effect, a source and their parameter
// values, stored as TOML:
//
//	effect = "cel"
//	source = "perlin"
//
//	[params]
//	blur = 2.5
//	harmony = "complementary"
//
//	[source_params]
//	gridSize = 4.0
type Preset struct {
	Effect       string         `toml:"effect,omitempty"`
	Source       string         `toml:"source,omitempty"`
	Params       map[string]any `toml:"params,omitempty"`
	SourceParams map[string]any `toml:"source_params,omitempty"`
}

// ReadPreset decodes a preset. Unknown top-level keys are rejected.
func ReadPreset(r io.Reader) (*Preset, error) {
	var p Preset
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("params: preset line %d column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("params: preset: %w", err)
	}
	return &p, nil
}

// LoadPreset reads a preset file.
func LoadPreset(path string) (*Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPreset(f)
}

// Write encodes p as TOML.
func (p *Preset) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("params: preset: %w", err)
	}
	return nil
}

// Save writes p to path.
func (p *Preset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Values returns the current values keyed by ID, in a form TOML can encode.
// Colors are hex strings; buttons are omitted.
func (s *Set) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for id, v := range s.values {
		if c, ok := v.(color.NRGBA); ok {
			out[id] = Hex(c)
			continue
		}
		out[id] = v
	}
	return out
}

// Apply assigns every value in vals. It stops at the first error; values
// applied before it stay applied.
func (s *Set) Apply(vals map[string]any) error {
	for _, p := range s.Params() {
		v, ok := vals[p.ID]
		if !ok {
			continue
		}
		if p.Kind.numeric() {
			if f, ok := toFloat(v); ok {
				v = f
			}
		}
		if err := s.Set(p.ID, v); err != nil {
			return err
		}
	}
	for id := range vals {
		if _, ok := s.Lookup(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknown, id)
		}
	}
	return nil
}
