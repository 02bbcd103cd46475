package vision

import "testing"

// maskWithRect returns a mask with a solid foreground rectangle.
func maskWithRect(w, h, x, y, rw, rh int) *Mask {
	m := NewMask(w, h)
	fillRect(m, x, y, rw, rh)
	return m
}

func fillRect(m *Mask, x, y, w, h int) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			m.Set(x+dx, y+dy, true)
		}
	}
}

func TestOpenRemovesSpeckle(t *testing.T) {
	m := maskWithRect(40, 40, 5, 5, 12, 12)
	// Isolated noise pixels well away from the blob.
	m.Set(30, 30, true)
	m.Set(35, 10, true)

	out := Open(m, 1)

	if out.At(30, 30) || out.At(35, 10) {
		t.Error("Open left isolated speckle pixels")
	}
	if got, want := out.CountForeground(), 12*12; got != want {
		t.Errorf("Open foreground count = %d, want %d", got, want)
	}
}

func TestCloseFillsHoles(t *testing.T) {
	m := maskWithRect(40, 40, 5, 5, 12, 12)
	m.Set(10, 10, false) // pinhole inside the blob

	out := Close(m, 1)

	if !out.At(10, 10) {
		t.Error("Close did not fill the interior hole")
	}
	if got, want := out.CountForeground(), 12*12; got != want {
		t.Errorf("Close foreground count = %d, want %d", got, want)
	}
}

func TestOpenPreservesLargeBlob(t *testing.T) {
	m := maskWithRect(40, 40, 5, 5, 20, 10)
	out := Open(m, 2)
	if got, want := out.CountForeground(), 20*10; got != want {
		t.Errorf("foreground count = %d, want %d", got, want)
	}
}

func TestErodeRemovesBlobSmallerThanKernel(t *testing.T) {
	m := maskWithRect(40, 40, 5, 5, 3, 3)
	out := Erode(m, 2) // 5x5 kernel, blob is only 3x3
	if got := out.CountForeground(); got != 0 {
		t.Errorf("Erode left %d pixels of an undersized blob", got)
	}
}

func TestZeroRadiusIsIdentity(t *testing.T) {
	m := maskWithRect(20, 20, 3, 3, 5, 7)
	for _, tc := range []struct {
		name string
		fn   func(*Mask, int) *Mask
	}{
		{"Erode", Erode},
		{"Dilate", Dilate},
		{"Open", Open},
		{"Close", Close},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.fn(m, 0)
			if got, want := out.CountForeground(), 5*7; got != want {
				t.Errorf("foreground count = %d, want %d", got, want)
			}
		})
	}
}
