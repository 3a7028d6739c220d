package stylize

import "fmt"

// FrameSize is the pixel size of a rendered frame.
type FrameSize struct {
	Width  uint32
	Height uint32
}

// Valid reports whether both dimensions are positive.
func (s FrameSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Pixels returns Width*Height.
func (s FrameSize) Pixels() uint64 {
	return uint64(s.Width) * uint64(s.Height)
}

// Workgroups returns the compute dispatch grid covering the frame with
// square tiles of the given edge length.
func (s FrameSize) Workgroups(tile uint32) (x, y uint32) {
	if tile == 0 {
		return 0, 0
	}
	return (s.Width + tile - 1) / tile, (s.Height + tile - 1) / tile
}

// String returns the size as "WxH".
func (s FrameSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
