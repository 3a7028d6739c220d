package params

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Errors returned by Set accessors.
var (
	// ErrUnknown is returned for an ID the set does not declare.
	ErrUnknown = errors.New("params: unknown parameter")

	// ErrKind is returned when a value of the wrong kind is assigned.
	ErrKind = errors.New("params: wrong parameter kind")

	// ErrOption is returned for an enum value that is not one of its options.
	ErrOption = errors.New("params: not a valid option")

	// ErrDisabled is returned when a disabled parameter is changed.
	ErrDisabled = errors.New("params: parameter disabled")
)

// Kind is the type of a parameter.
type Kind uint8

const (
	KindNumber Kind = iota
	KindEnum
	KindBool
	KindRange
	KindColor
	KindButton
)

var kindNames = [...]string{"number", "enum", "bool", "range", "color", "btn"}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// numeric reports whether values of the kind are float64.
func (k Kind) numeric() bool { return k == KindNumber || k == KindRange }

// Choice is one option of an enum parameter.
type Choice struct {
	ID    string
	Label string
}

// Param declares one parameter. Use the Number, Enum, Bool, Range, Color
// and Button constructors.
type Param struct {
	ID    string
	Label string
	Title string // hint text
	Kind  Kind

	Disabled bool

	// Number and range bounds. Range parameters always have both.
	Min, Max       float64
	HasMin, HasMax bool
	Step           float64

	// Configurable range bounds can be changed with SetBounds.
	Configurable bool

	Choices []Choice

	Default any

	// Action runs when a button is pressed.
	Action func()
}

// ParamOption customizes a declared parameter.
type ParamOption func(*Param)

// Min sets the lower bound of a number.
func Min(v float64) ParamOption {
	return func(p *Param) { p.Min, p.HasMin = v, true }
}

// Max sets the upper bound of a number.
func Max(v float64) ParamOption {
	return func(p *Param) { p.Max, p.HasMax = v, true }
}

// Step sets the increment numbers are snapped to.
func Step(v float64) ParamOption {
	return func(p *Param) { p.Step = v }
}

// Label overrides the label derived from the ID.
func Label(s string) ParamOption {
	return func(p *Param) { p.Label = s }
}

// Title sets the hint text.
func Title(s string) ParamOption {
	return func(p *Param) { p.Title = s }
}

// Disabled marks the parameter read-only.
func Disabled() ParamOption {
	return func(p *Param) { p.Disabled = true }
}

// Configurable allows the bounds of a range to change.
func Configurable() ParamOption {
	return func(p *Param) { p.Configurable = true }
}

func build(p Param, opts []ParamOption) Param {
	for _, opt := range opts {
		opt(&p)
	}
	if p.Label == "" {
		p.Label = LabelFor(p.ID)
	}
	return p
}

// Number declares a free numeric parameter.
func Number(id string, def float64, opts ...ParamOption) Param {
	return build(Param{ID: id, Kind: KindNumber, Default: def}, opts)
}

// Range declares a bounded numeric parameter.
func Range(id string, def, lo, hi float64, opts ...ParamOption) Param {
	return build(Param{
		ID: id, Kind: KindRange, Default: def,
		Min: lo, Max: hi, HasMin: true, HasMax: true,
	}, opts)
}

// Enum declares a parameter choosing one of ids. Choice labels are derived
// from the ids.
func Enum(id, def string, ids ...string) Param {
	choices := make([]Choice, len(ids))
	for i, c := range ids {
		choices[i] = Choice{ID: c, Label: LabelFor(c)}
	}
	return build(Param{ID: id, Kind: KindEnum, Default: def, Choices: choices}, nil)
}

// EnumOf declares an enum with explicit choices.
func EnumOf(id, def string, choices []Choice, opts ...ParamOption) Param {
	return build(Param{ID: id, Kind: KindEnum, Default: def, Choices: choices}, opts)
}

// Bool declares a checkbox parameter.
func Bool(id string, def bool, opts ...ParamOption) Param {
	return build(Param{ID: id, Kind: KindBool, Default: def}, opts)
}

// Color declares a color parameter.
func Color(id string, def color.NRGBA, opts ...ParamOption) Param {
	return build(Param{ID: id, Kind: KindColor, Default: def}, opts)
}

// Button declares an action without a value.
func Button(id string, action func(), opts ...ParamOption) Param {
	return build(Param{ID: id, Kind: KindButton, Action: action}, opts)
}

var titleCaser = cases.Title(language.English)

// LabelFor derives a display label from a camelCase or snake_case ID:
// "aaStrength" becomes "Aa Strength".
func LabelFor(id string) string {
	var b strings.Builder
	prev := rune(0)
	for _, r := range id {
		switch {
		case r == '_' || r == '-':
			r = ' '
		case unicode.IsUpper(r) && prev != 0 && unicode.IsLower(prev):
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return titleCaser.String(b.String())
}

// normalize converts v to the canonical value type of p's kind and applies
// bounds, steps and option checks.
func (p *Param) normalize(v any) (any, error) {
	switch p.Kind {
	case KindNumber, KindRange:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a number, got %T", ErrKind, p.ID, v)
		}
		return p.clamp(f), nil
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a string, got %T", ErrKind, p.ID, v)
		}
		if p.choice(s) < 0 {
			return nil, fmt.Errorf("%w: %s = %q", ErrOption, p.ID, s)
		}
		return s, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a bool, got %T", ErrKind, p.ID, v)
		}
		return b, nil
	case KindColor:
		switch c := v.(type) {
		case color.NRGBA:
			return c, nil
		case string:
			return ParseHex(c)
		}
		return nil, fmt.Errorf("%w: %s wants a color, got %T", ErrKind, p.ID, v)
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrKind, p.ID, p.Kind)
}

func (p *Param) clamp(f float64) float64 {
	if math.IsNaN(f) {
		f = 0
	}
	if p.Step > 0 {
		base := 0.0
		if p.HasMin {
			base = p.Min
		}
		f = base + math.Round((f-base)/p.Step)*p.Step
	}
	if p.HasMin && f < p.Min {
		f = p.Min
	}
	if p.HasMax && f > p.Max {
		f = p.Max
	}
	return f
}

func (p *Param) choice(id string) int {
	for i, c := range p.Choices {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

// ParseHex parses "#rrggbb" or "#rrggbbaa".
func ParseHex(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 && len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("params: bad color %q", s)
	}
	if len(h) == 6 {
		h += "ff"
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("params: bad color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// Hex formats c as "#rrggbbaa".
func Hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Change describes one applied parameter change.
type Change struct {
	ID       string
	Old, New any
}

// Set is an ordered collection of parameters with current values.
// It is safe for concurrent use; watchers run on the goroutine that made
// the change, after the set is unlocked.
type Set struct {
	mu       sync.Mutex
	params   []Param
	index    map[string]int
	values   map[string]any
	watchers []func(Change)
}

// NewSet creates a set with every parameter at its default. It panics on a
// duplicate ID or an invalid default.
func NewSet(ps ...Param) *Set {
	s := &Set{
		params: ps,
		index:  make(map[string]int, len(ps)),
		values: make(map[string]any, len(ps)),
	}
	for i := range s.params {
		p := &s.params[i]
		if _, dup := s.index[p.ID]; dup {
			panic("params: duplicate parameter " + p.ID)
		}
		s.index[p.ID] = i
		if p.Kind == KindButton {
			continue
		}
		v, err := p.normalize(p.Default)
		if err != nil {
			panic(fmt.Sprintf("params: default of %s: %v", p.ID, err))
		}
		p.Default = v
		s.values[p.ID] = v
	}
	return s
}

// Params returns the declarations in order.
func (s *Set) Params() []Param {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Param(nil), s.params...)
}

// Len returns the number of parameters.
func (s *Set) Len() int { return len(s.params) }

// Lookup returns the declaration of id.
func (s *Set) Lookup(id string) (Param, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Param{}, false
	}
	return s.params[i], true
}

// Watch registers fn to be called after each change.
func (s *Set) Watch(fn func(Change)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Value returns the current value of id.
func (s *Set) Value(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	return v, ok
}

// Set assigns v to id. Numbers are clamped and snapped; enum values must
// be one of the choices. Watchers are notified only if the value changed.
func (s *Set) Set(id string, v any) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	p := &s.params[i]
	if p.Disabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	nv, err := p.normalize(v)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.values[id]
	if old == nv {
		s.mu.Unlock()
		return nil
	}
	s.values[id] = nv
	watchers := s.watchers
	s.mu.Unlock()

	notify(watchers, Change{ID: id, Old: old, New: nv})
	return nil
}

// SetText assigns a value typed by a user. Unparsable numbers become 0.
func (s *Set) SetText(id, text string) error {
	p, ok := s.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	text = strings.TrimSpace(text)
	switch p.Kind {
	case KindNumber, KindRange:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			f = 0
		}
		return s.Set(id, f)
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("%w: %s wants a bool, got %q", ErrKind, id, text)
		}
		return s.Set(id, b)
	case KindButton:
		return s.Press(id)
	default:
		return s.Set(id, text)
	}
}

// SetBounds changes the bounds of a configurable range and re-clamps its
// value.
func (s *Set) SetBounds(id string, lo, hi float64) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	p := &s.params[i]
	if p.Kind != KindRange || !p.Configurable {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s has fixed bounds", ErrKind, id)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	p.Min, p.Max = lo, hi
	old := s.values[id]
	nv := p.clamp(old.(float64))
	s.values[id] = nv
	watchers := s.watchers
	s.mu.Unlock()

	if nv != old {
		notify(watchers, Change{ID: id, Old: old, New: nv})
	}
	return nil
}

// Press runs a button's action and notifies watchers.
func (s *Set) Press(id string) error {
	p, ok := s.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	if p.Kind != KindButton {
		return fmt.Errorf("%w: %s is a %s", ErrKind, id, p.Kind)
	}
	if p.Disabled {
		return fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	if p.Action != nil {
		p.Action()
	}
	s.mu.Lock()
	watchers := s.watchers
	s.mu.Unlock()
	notify(watchers, Change{ID: id})
	return nil
}

// Reset restores every parameter to its default without notifying.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.params {
		if p.Kind != KindButton {
			s.values[p.ID] = p.Default
		}
	}
}

func notify(watchers []func(Change), c Change) {
	for _, w := range watchers {
		w(c)
	}
}

// Float returns a number or range value, or 0.
func (s *Set) Float(id string) float64 {
	v, _ := s.Value(id)
	f, _ := v.(float64)
	return f
}

// Float32 returns Float as float32, for uniform buffers.
func (s *Set) Float32(id string) float32 { return float32(s.Float(id)) }

// Choice returns an enum value, or "".
func (s *Set) Choice(id string) string {
	v, _ := s.Value(id)
	str, _ := v.(string)
	return str
}

// Index returns the position of the enum value among its choices, or -1.
func (s *Set) Index(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return -1
	}
	str, _ := s.values[id].(string)
	return s.params[i].choice(str)
}

// Bool returns a bool value, or false.
func (s *Set) Bool(id string) bool {
	v, _ := s.Value(id)
	b, _ := v.(bool)
	return b
}

// Color returns a color value, or transparent black.
func (s *Set) Color(id string) color.NRGBA {
	v, _ := s.Value(id)
	c, _ := v.(color.NRGBA)
	return c
}

// SetFloat is Set for numbers.
func (s *Set) SetFloat(id string, v float64) error { return s.Set(id, v) }

// SetBool is Set for bools.
func (s *Set) SetBool(id string, v bool) error { return s.Set(id, v) }
