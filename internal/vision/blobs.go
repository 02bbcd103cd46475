package vision

import (
	"math"
)

// ExtractorParams tunes blob extraction and the geometry filter.
type ExtractorParams struct {
	// KernelRadius is the structuring-element radius for the open and
	// close passes. Typical: 2 (a 5x5 kernel).
	KernelRadius int

	// MinArea and MaxArea bound the accepted blob pixel count. Both
	// bounds are exclusive: a blob survives only if MinArea < area < MaxArea.
	MinArea int
	MaxArea int

	// MinAspectRatio and MaxAspectRatio bound the accepted bounding-box
	// width/height ratio, both exclusive.
	MinAspectRatio float64
	MaxAspectRatio float64
}

// DefaultExtractorParams returns the production defaults, sized for
// vehicles at a typical roadside camera mounting.
func DefaultExtractorParams() ExtractorParams {
	return ExtractorParams{
		KernelRadius:   2,
		MinArea:        200,
		MaxArea:        15000,
		MinAspectRatio: 0.3,
		MaxAspectRatio: 4.0,
	}
}

// vehicleAspectPrior is the bounding-box ratio treated as the most
// vehicle-like when scoring shape confidence.
const vehicleAspectPrior = 1.5

// BlobExtractor turns foreground masks into vehicle detections. Stateless
// apart from its params; one instance may serve many approaches.
type BlobExtractor struct {
	params ExtractorParams
}

// NewBlobExtractor creates an extractor. Zero or inverted params fall
// back to defaults.
func NewBlobExtractor(params ExtractorParams) *BlobExtractor {
	def := DefaultExtractorParams()
	if params.KernelRadius < 0 {
		params.KernelRadius = def.KernelRadius
	}
	if params.MinArea <= 0 || params.MaxArea <= params.MinArea {
		params.MinArea = def.MinArea
		params.MaxArea = def.MaxArea
	}
	if params.MinAspectRatio <= 0 || params.MaxAspectRatio <= params.MinAspectRatio {
		params.MinAspectRatio = def.MinAspectRatio
		params.MaxAspectRatio = def.MaxAspectRatio
	}
	return &BlobExtractor{params: params}
}

// Extract cleans the mask morphologically, labels 8-connected components,
// and returns the detections that pass the geometry filter. Detections
// carry sequential IDs starting at 1 in discovery order (row-major by the
// blob's first pixel). An empty or nil mask yields no detections and no
// error.
func (e *BlobExtractor) Extract(mask *Mask) []Detection {
	if mask == nil || len(mask.Bits) == 0 {
		return nil
	}

	cleaned := Close(Open(mask, e.params.KernelRadius), e.params.KernelRadius)

	var detections []Detection
	visited := make([]bool, len(cleaned.Bits))
	for y := 0; y < cleaned.Height; y++ {
		for x := 0; x < cleaned.Width; x++ {
			idx := y*cleaned.Width + x
			if visited[idx] || !cleaned.Bits[idx] {
				continue
			}
			area, box := e.flood(cleaned, visited, x, y)
			d, ok := e.score(area, box)
			if !ok {
				continue
			}
			d.ID = len(detections) + 1
			detections = append(detections, d)
		}
	}
	return detections
}

// flood walks one 8-connected component with an explicit queue, marking
// visited pixels and accumulating the component's area and bounding box.
func (e *BlobExtractor) flood(m *Mask, visited []bool, sx, sy int) (int, BoundingBox) {
	box := BoundingBox{MinX: sx, MinY: sy, MaxX: sx, MaxY: sy}
	area := 0

	queue := []int{sy*m.Width + sx}
	visited[queue[0]] = true
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		x, y := idx%m.Width, idx/m.Width

		area++
		if x < box.MinX {
			box.MinX = x
		}
		if x > box.MaxX {
			box.MaxX = x
		}
		if y < box.MinY {
			box.MinY = y
		}
		if y > box.MaxY {
			box.MaxY = y
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
					continue
				}
				nidx := ny*m.Width + nx
				if visited[nidx] || !m.Bits[nidx] {
					continue
				}
				visited[nidx] = true
				queue = append(queue, nidx)
			}
		}
	}
	return area, box
}

// score applies the geometry filter and computes the confidence for an
// accepted blob.
func (e *BlobExtractor) score(area int, box BoundingBox) (Detection, bool) {
	p := e.params

	if area <= p.MinArea || area >= p.MaxArea {
		return Detection{}, false
	}
	// Degenerate boxes cannot produce a meaningful ratio.
	if box.Width() <= 0 || box.Height() <= 0 {
		return Detection{}, false
	}
	ar := box.AspectRatio()
	if ar <= p.MinAspectRatio || ar >= p.MaxAspectRatio {
		return Detection{}, false
	}

	mid := float64(p.MinArea+p.MaxArea) / 2
	halfRange := float64(p.MaxArea-p.MinArea) / 2
	areaScore := clamp01(1 - math.Abs(float64(area)-mid)/halfRange)

	tol := math.Max(vehicleAspectPrior-p.MinAspectRatio, p.MaxAspectRatio-vehicleAspectPrior)
	shapeScore := clamp01(1 - math.Abs(ar-vehicleAspectPrior)/tol)

	return Detection{
		Area:        area,
		Box:         box,
		AspectRatio: ar,
		Confidence:  areaScore * shapeScore,
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
