package vision

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/greenwave-data/crossflow/internal/config"
)

func detectorConfig(t *testing.T) *config.Config {
	t.Helper()
	width, height := 64, 48
	warmup := 3
	cfg := &config.Config{
		CameraWidth:  &width,
		CameraHeight: &height,
		WarmupFrames: &warmup,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func TestDetectorPipeline(t *testing.T) {
	det, err := NewDetector(detectorConfig(t))
	if err != nil {
		t.Fatal(err)
	}

	background := flatFrame(64, 48, 50)
	vehicle := withRect(background, 10, 10, 25, 20, 220)

	// Warm-up frames report zero and flag themselves as warming.
	for i := 0; i < 3; i++ {
		res, err := det.Process(background)
		if err != nil {
			t.Fatal(err)
		}
		if res.RawCount != 0 || res.StableCount != 0 {
			t.Errorf("warmup frame %d: counts %d/%d, want 0/0", i, res.RawCount, res.StableCount)
		}
	}

	// Settle a few more background frames past warm-up.
	for i := 0; i < 5; i++ {
		res, err := det.Process(background)
		if err != nil {
			t.Fatal(err)
		}
		if res.Warming {
			t.Fatalf("frame %d still warming after warmup window", i)
		}
		if res.RawCount != 0 {
			t.Fatalf("background frame produced %d detections", res.RawCount)
		}
	}

	// A vehicle-sized blob appears: raw count reacts immediately, the
	// stable count climbs as the window fills.
	res, err := det.Process(vehicle)
	if err != nil {
		t.Fatal(err)
	}
	if res.RawCount != 1 {
		t.Fatalf("RawCount = %d, want 1", res.RawCount)
	}
	if res.StableCount != 0 {
		t.Errorf("StableCount = %d after one vehicle frame, want 0 (window still mostly empty)", res.StableCount)
	}

	res, err = det.Process(vehicle)
	if err != nil {
		t.Fatal(err)
	}
	if res.StableCount != 1 {
		t.Errorf("StableCount = %d after two vehicle frames, want 1", res.StableCount)
	}

	d := res.Detections[0]
	if d.ID != 1 {
		t.Errorf("detection ID = %d, want 1", d.ID)
	}
	if d.Area != 25*20 {
		t.Errorf("detection area = %d, want %d", d.Area, 25*20)
	}
	if d.Confidence <= 0 || d.Confidence > 1 {
		t.Errorf("detection confidence = %f, want in (0, 1]", d.Confidence)
	}
}

func TestDetectorRepeatedFrameYieldsIdenticalDetections(t *testing.T) {
	det, err := NewDetector(detectorConfig(t))
	if err != nil {
		t.Fatal(err)
	}

	background := flatFrame(64, 48, 50)
	for i := 0; i < 8; i++ {
		if _, err := det.Process(background); err != nil {
			t.Fatal(err)
		}
	}

	// A static scene must produce the same detection set frame after
	// frame: same IDs, boxes, areas, and confidences.
	vehicle := withRect(background, 10, 10, 25, 20, 220)
	first, err := det.Process(vehicle)
	if err != nil {
		t.Fatal(err)
	}
	second, err := det.Process(vehicle)
	if err != nil {
		t.Fatal(err)
	}

	if first.RawCount != second.RawCount {
		t.Errorf("raw counts differ: %d then %d", first.RawCount, second.RawCount)
	}
	if diff := cmp.Diff(first.Detections, second.Detections); diff != "" {
		t.Errorf("same frame produced different detections (-first +second):\n%s", diff)
	}
}

func TestDetectorLatestSnapshot(t *testing.T) {
	det, err := NewDetector(detectorConfig(t))
	if err != nil {
		t.Fatal(err)
	}

	if got := det.Latest(); got.RawCount != 0 || got.Detections != nil {
		t.Errorf("Latest() before any frame = %+v, want zero value", got)
	}

	background := flatFrame(64, 48, 50)
	want, err := det.Process(background)
	if err != nil {
		t.Fatal(err)
	}
	got := det.Latest()
	if got.RawCount != want.RawCount || got.StableCount != want.StableCount || got.Warming != want.Warming {
		t.Errorf("Latest() = %+v, want %+v", got, want)
	}
}

func TestDetectorRejectsBadConfigDimensions(t *testing.T) {
	zero := 0
	cfg := &config.Config{CameraWidth: &zero}
	if _, err := NewDetector(cfg); err == nil {
		t.Error("NewDetector accepted a zero camera width")
	}
}
