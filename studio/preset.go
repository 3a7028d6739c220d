package studio

import (
	"fmt"

	"github.com/gogpu/stylize/params"
	"github.com/gogpu/stylize/source"
)

// Preset captures the active effect, the source kind and every parameter
// value.
func (s *Studio) Preset() *params.Preset {
	p := &params.Preset{}
	if s.effect != nil {
		p.Effect = s.effect.Name()
		p.Params = s.effect.Params().Values()
	}
	if s.src != nil {
		p.Source = s.src.Name()
		p.SourceParams = s.src.Params().Values()
	}
	return p
}

// ApplyPreset selects the preset's effect (never toggling it off), switches
// to noise when the preset names it, applies the parameter values and
// renders once.
func (s *Studio) ApplyPreset(p *params.Preset) error {
	if s.closed {
		return ErrClosed
	}
	s.holding = true
	err := s.applyPreset(p)
	s.holding = false
	if err != nil {
		return err
	}
	return s.restart()
}

func (s *Studio) applyPreset(p *params.Preset) error {
	if p.Source == source.NamePerlin {
		if err := s.UsePerlin(); err != nil {
			return err
		}
	}
	switch {
	case p.Effect == "":
		if s.effect != nil {
			s.loop.Cancel()
			s.effect.Close()
			s.effect = nil
		}
	case s.effect == nil || s.effect.Name() != p.Effect:
		if err := s.useEffect(p.Effect); err != nil {
			return err
		}
	}
	if s.effect != nil && len(p.Params) > 0 {
		if err := s.effect.Params().Apply(p.Params); err != nil {
			return fmt.Errorf("studio: preset %s: %w", p.Effect, err)
		}
	}
	if s.src != nil && p.Source == s.src.Name() && len(p.SourceParams) > 0 {
		if err := s.src.Params().Apply(p.SourceParams); err != nil {
			return fmt.Errorf("studio: preset source %s: %w", p.Source, err)
		}
	}
	return nil
}

// LoadPreset applies the preset file at path.
func (s *Studio) LoadPreset(path string) error {
	p, err := params.LoadPreset(path)
	if err != nil {
		return err
	}
	return s.ApplyPreset(p)
}
