package vision

// Morphological cleanup on binary masks. Open (erode then dilate) removes
// speckle noise smaller than the structuring element; Close (dilate then
// erode) fills small holes inside otherwise solid blobs. Both use a square
// structuring element of side 2*radius+1.

// Erode returns a mask where a pixel survives only if every pixel in its
// neighborhood is foreground. Pixels whose neighborhood extends past the
// image edge treat the outside as background.
func Erode(m *Mask, radius int) *Mask {
	if radius <= 0 {
		return cloneMask(m)
	}
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Bits[y*m.Width+x] {
				continue
			}
			out.Bits[y*m.Width+x] = neighborhoodAll(m, x, y, radius)
		}
	}
	return out
}

// Dilate returns a mask where a pixel is set if any pixel in its
// neighborhood is foreground.
func Dilate(m *Mask, radius int) *Mask {
	if radius <= 0 {
		return cloneMask(m)
	}
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if neighborhoodAny(m, x, y, radius) {
				out.Bits[y*m.Width+x] = true
			}
		}
	}
	return out
}

// Open performs erosion followed by dilation.
func Open(m *Mask, radius int) *Mask {
	return Dilate(Erode(m, radius), radius)
}

// Close performs dilation followed by erosion.
func Close(m *Mask, radius int) *Mask {
	return Erode(Dilate(m, radius), radius)
}

func neighborhoodAll(m *Mask, cx, cy, radius int) bool {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if !m.At(x, y) {
				return false
			}
		}
	}
	return true
}

func neighborhoodAny(m *Mask, cx, cy, radius int) bool {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if m.At(x, y) {
				return true
			}
		}
	}
	return false
}

func cloneMask(m *Mask) *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Bits, m.Bits)
	return out
}
