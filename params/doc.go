// Package params declares the user-tunable parameters of effects and
// sources.
//
// A Set holds a fixed, ordered list of parameters. Each parameter has a
// kind (number, enum, bool, range, color or button), a default, and a
// current value that can be changed by a host shell, a CLI flag or a TOML
// preset. Watchers are notified after every effective change so the host can
// re-render.
//
//	set := params.NewSet(
//		params.Number("blur", 3, params.Step(0.1), params.Min(0)),
//		params.Enum("harmony", "analogous", "analogous", "equidistant"),
//		params.Bool("aa", true),
//	)
//	set.Watch(func(c params.Change) { rerender() })
//	_ = set.SetFloat("blur", 2.5)
//
// Number values are clamped to their bounds and snapped to their step.
// Buttons have no value; Press runs their action and notifies watchers.
package params
