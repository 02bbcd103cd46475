// Package vision implements the per-approach vehicle detection pipeline:
// adaptive background subtraction, morphological cleanup, connected
// component extraction with geometric filtering, and temporal count
// stabilization. Each approach runs its own Detector instance; instances
// share nothing.
package vision

import (
	"fmt"
	"time"
)

// Frame is a single-channel intensity image in row-major order.
// Pix has Width*Height entries; Pix[y*Width+x] is the pixel at (x, y).
type Frame struct {
	Width     int
	Height    int
	Pix       []uint8
	Timestamp time.Time
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// At returns the pixel at (x, y). Out-of-bounds coordinates return 0.
func (f *Frame) At(x, y int) uint8 {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return 0
	}
	return f.Pix[y*f.Width+x]
}

// Set writes the pixel at (x, y). Out-of-bounds coordinates are ignored.
func (f *Frame) Set(x, y int, v uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return
	}
	f.Pix[y*f.Width+x] = v
}

// Validate checks the frame geometry against its pixel buffer.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame buffer has %d pixels, want %d", len(f.Pix), f.Width*f.Height)
	}
	return nil
}

// Mask is a binary foreground mask with the same layout as Frame.Pix.
// A true entry marks a foreground pixel.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an all-background mask of the given dimensions.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]bool, width*height),
	}
}

// At reports whether (x, y) is foreground. Out-of-bounds is background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Bits[y*m.Width+x] = v
}

// CountForeground returns the number of foreground pixels in the mask.
func (m *Mask) CountForeground() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// BoundingBox is the axis-aligned pixel extent of a blob. Max coordinates
// are inclusive.
type BoundingBox struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() int { return b.MaxX - b.MinX + 1 }

// Height returns the box height in pixels.
func (b BoundingBox) Height() int { return b.MaxY - b.MinY + 1 }

// AspectRatio returns width divided by height. Degenerate boxes (zero
// height) return 0 and are rejected by the geometry filter before this
// value is compared against the configured bounds.
func (b BoundingBox) AspectRatio() float64 {
	h := b.Height()
	if h <= 0 {
		return 0
	}
	return float64(b.Width()) / float64(h)
}

// Detection is one accepted vehicle candidate in a single frame.
type Detection struct {
	// ID is the blob's index within its frame, assigned sequentially
	// from 1 in extraction order. IDs are not stable across frames.
	ID int `json:"id"`

	// Area is the foreground pixel count of the blob, not the box area.
	Area int `json:"area"`

	Box         BoundingBox `json:"box"`
	AspectRatio float64     `json:"aspect_ratio"`

	// Confidence is the product of the area and shape plausibility
	// scores, each clamped to [0, 1].
	Confidence float64 `json:"confidence"`
}
