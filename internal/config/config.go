// Package config holds the tuning configuration for the detection and
// signal-control pipeline.
//
// Configuration is loaded once at startup, validated, and then passed by
// value to the components that need it; nothing re-reads configuration at
// runtime. All fields are pointers so a partial JSON file only overrides
// what it mentions, with the Get* accessors supplying defaults for the
// rest. Recognised environment variables override the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the root tuning configuration. The JSON schema doubles as the
// on-disk startup configuration and the /api/config response.
type Config struct {
	// Camera geometry and cadence
	CameraWidth  *int `json:"camera_width,omitempty"`
	CameraHeight *int `json:"camera_height,omitempty"`
	CameraFPS    *int `json:"camera_fps,omitempty"`

	// Background model params
	BackgroundUpdateFraction *float64 `json:"background_update_fraction,omitempty"`
	VarianceThreshold        *float64 `json:"variance_threshold,omitempty"`
	WarmupFrames             *int     `json:"warmup_frames,omitempty"`

	// Blob geometry filter params
	MinVehicleArea *int     `json:"min_vehicle_area,omitempty"`
	MaxVehicleArea *int     `json:"max_vehicle_area,omitempty"`
	MinAspectRatio *float64 `json:"min_aspect_ratio,omitempty"`
	MaxAspectRatio *float64 `json:"max_aspect_ratio,omitempty"`
	KernelRadius   *int     `json:"kernel_radius,omitempty"`

	// Count stabilisation
	StabilizationWindow *int `json:"stabilization_window,omitempty"`

	// Signal timing envelope (seconds)
	MinGreenTime        *float64 `json:"min_green_time,omitempty"`
	MaxGreenTime        *float64 `json:"max_green_time,omitempty"`
	BaseGreenTime       *float64 `json:"base_green_time,omitempty"`
	ExtensionPerVehicle *float64 `json:"extension_per_vehicle,omitempty"`

	// PairAggregate selects how the two approaches of a phase pair are
	// combined into one demand figure: "sum" or "max".
	PairAggregate *string `json:"pair_aggregate,omitempty"`

	// ControllerTick is the controller decision cadence, a duration
	// string like "500ms".
	ControllerTick *string `json:"controller_tick,omitempty"`
}

// Empty returns a Config with all fields unset. The Get* accessors supply
// defaults for every unset field.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the recognised environment variables.
// A set-but-unparseable variable is a configuration error.
func (c *Config) ApplyEnv() error {
	intVars := map[string]**int{
		"CAMERA_WIDTH":         &c.CameraWidth,
		"CAMERA_HEIGHT":        &c.CameraHeight,
		"CAMERA_FPS":           &c.CameraFPS,
		"MIN_VEHICLE_AREA":     &c.MinVehicleArea,
		"MAX_VEHICLE_AREA":     &c.MaxVehicleArea,
		"STABILIZATION_WINDOW": &c.StabilizationWindow,
	}
	for name, field := range intVars {
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, raw, err)
		}
		*field = &v
	}

	floatVars := map[string]**float64{
		"MIN_ASPECT_RATIO":      &c.MinAspectRatio,
		"MAX_ASPECT_RATIO":      &c.MaxAspectRatio,
		"MIN_GREEN_TIME":        &c.MinGreenTime,
		"MAX_GREEN_TIME":        &c.MaxGreenTime,
		"BASE_GREEN_TIME":       &c.BaseGreenTime,
		"EXTENSION_PER_VEHICLE": &c.ExtensionPerVehicle,
	}
	for name, field := range floatVars {
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, raw, err)
		}
		*field = &v
	}

	return nil
}

// Validate checks that the configuration is internally consistent. An
// inconsistent timing envelope or geometry filter is fatal at startup;
// the pipeline must not run with one.
func (c *Config) Validate() error {
	if c.CameraWidth != nil && *c.CameraWidth <= 0 {
		return fmt.Errorf("camera_width must be positive, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight <= 0 {
		return fmt.Errorf("camera_height must be positive, got %d", *c.CameraHeight)
	}
	if c.CameraFPS != nil && *c.CameraFPS <= 0 {
		return fmt.Errorf("camera_fps must be positive, got %d", *c.CameraFPS)
	}

	if c.BackgroundUpdateFraction != nil {
		if f := *c.BackgroundUpdateFraction; f <= 0 || f > 1 {
			return fmt.Errorf("background_update_fraction must be in (0, 1], got %f", f)
		}
	}
	if c.VarianceThreshold != nil && *c.VarianceThreshold <= 0 {
		return fmt.Errorf("variance_threshold must be positive, got %f", *c.VarianceThreshold)
	}
	if c.WarmupFrames != nil && *c.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must be non-negative, got %d", *c.WarmupFrames)
	}

	minArea, maxArea := c.GetMinVehicleArea(), c.GetMaxVehicleArea()
	if minArea <= 0 {
		return fmt.Errorf("min_vehicle_area must be positive, got %d", minArea)
	}
	if minArea >= maxArea {
		return fmt.Errorf("min_vehicle_area %d must be below max_vehicle_area %d", minArea, maxArea)
	}
	minAR, maxAR := c.GetMinAspectRatio(), c.GetMaxAspectRatio()
	if minAR <= 0 {
		return fmt.Errorf("min_aspect_ratio must be positive, got %f", minAR)
	}
	if minAR >= maxAR {
		return fmt.Errorf("min_aspect_ratio %f must be below max_aspect_ratio %f", minAR, maxAR)
	}
	if c.KernelRadius != nil && *c.KernelRadius < 0 {
		return fmt.Errorf("kernel_radius must be non-negative, got %d", *c.KernelRadius)
	}

	if c.StabilizationWindow != nil && *c.StabilizationWindow < 1 {
		return fmt.Errorf("stabilization_window must be at least 1, got %d", *c.StabilizationWindow)
	}

	minGreen, maxGreen, baseGreen := c.GetMinGreenTime(), c.GetMaxGreenTime(), c.GetBaseGreenTime()
	if minGreen <= 0 {
		return fmt.Errorf("min_green_time must be positive, got %s", minGreen)
	}
	if minGreen > maxGreen {
		return fmt.Errorf("min_green_time %s exceeds max_green_time %s", minGreen, maxGreen)
	}
	if baseGreen < minGreen || baseGreen > maxGreen {
		return fmt.Errorf("base_green_time %s outside [%s, %s]", baseGreen, minGreen, maxGreen)
	}
	if c.ExtensionPerVehicle != nil && *c.ExtensionPerVehicle < 0 {
		return fmt.Errorf("extension_per_vehicle must be non-negative, got %f", *c.ExtensionPerVehicle)
	}

	if agg := c.GetPairAggregate(); agg != "sum" && agg != "max" {
		return fmt.Errorf("pair_aggregate must be \"sum\" or \"max\", got %q", agg)
	}

	if c.ControllerTick != nil && *c.ControllerTick != "" {
		if _, err := time.ParseDuration(*c.ControllerTick); err != nil {
			return fmt.Errorf("invalid controller_tick %q: %w", *c.ControllerTick, err)
		}
	}

	return nil
}

// GetCameraWidth returns the camera width or the default.
func (c *Config) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 640
	}
	return *c.CameraWidth
}

// GetCameraHeight returns the camera height or the default.
func (c *Config) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 480
	}
	return *c.CameraHeight
}

// GetCameraFPS returns the nominal camera frame rate or the default.
func (c *Config) GetCameraFPS() int {
	if c.CameraFPS == nil {
		return 30
	}
	return *c.CameraFPS
}

// GetBackgroundUpdateFraction returns the background EMA alpha or the default.
func (c *Config) GetBackgroundUpdateFraction() float64 {
	if c.BackgroundUpdateFraction == nil {
		return 0.02
	}
	return *c.BackgroundUpdateFraction
}

// GetVarianceThreshold returns the foreground variance threshold or the default.
func (c *Config) GetVarianceThreshold() float64 {
	if c.VarianceThreshold == nil {
		return 25
	}
	return *c.VarianceThreshold
}

// GetWarmupFrames returns the background warm-up frame count or the default.
func (c *Config) GetWarmupFrames() int {
	if c.WarmupFrames == nil {
		return 30
	}
	return *c.WarmupFrames
}

// GetMinVehicleArea returns the minimum blob area (px^2) or the default.
func (c *Config) GetMinVehicleArea() int {
	if c.MinVehicleArea == nil {
		return 200
	}
	return *c.MinVehicleArea
}

// GetMaxVehicleArea returns the maximum blob area (px^2) or the default.
func (c *Config) GetMaxVehicleArea() int {
	if c.MaxVehicleArea == nil {
		return 15000
	}
	return *c.MaxVehicleArea
}

// GetMinAspectRatio returns the minimum bounding-box aspect ratio or the default.
func (c *Config) GetMinAspectRatio() float64 {
	if c.MinAspectRatio == nil {
		return 0.3
	}
	return *c.MinAspectRatio
}

// GetMaxAspectRatio returns the maximum bounding-box aspect ratio or the default.
func (c *Config) GetMaxAspectRatio() float64 {
	if c.MaxAspectRatio == nil {
		return 4.0
	}
	return *c.MaxAspectRatio
}

// GetKernelRadius returns the morphology structuring-element radius or the default.
func (c *Config) GetKernelRadius() int {
	if c.KernelRadius == nil {
		return 2
	}
	return *c.KernelRadius
}

// GetStabilizationWindow returns the count-stabilisation window or the default.
func (c *Config) GetStabilizationWindow() int {
	if c.StabilizationWindow == nil {
		return 3
	}
	return *c.StabilizationWindow
}

// GetMinGreenTime returns the minimum green duration or the default.
func (c *Config) GetMinGreenTime() time.Duration {
	if c.MinGreenTime == nil {
		return 6 * time.Second
	}
	return secondsToDuration(*c.MinGreenTime)
}

// GetMaxGreenTime returns the maximum green duration or the default.
func (c *Config) GetMaxGreenTime() time.Duration {
	if c.MaxGreenTime == nil {
		return 15 * time.Second
	}
	return secondsToDuration(*c.MaxGreenTime)
}

// GetBaseGreenTime returns the base green duration or the default.
func (c *Config) GetBaseGreenTime() time.Duration {
	if c.BaseGreenTime == nil {
		return 8 * time.Second
	}
	return secondsToDuration(*c.BaseGreenTime)
}

// GetExtensionPerVehicle returns the per-vehicle green extension or the default.
func (c *Config) GetExtensionPerVehicle() time.Duration {
	if c.ExtensionPerVehicle == nil {
		return 1 * time.Second
	}
	return secondsToDuration(*c.ExtensionPerVehicle)
}

// GetPairAggregate returns the phase-pair aggregation mode or the default.
func (c *Config) GetPairAggregate() string {
	if c.PairAggregate == nil || *c.PairAggregate == "" {
		return "sum"
	}
	return *c.PairAggregate
}

// GetControllerTick returns the controller decision cadence or the default.
func (c *Config) GetControllerTick() time.Duration {
	if c.ControllerTick == nil || *c.ControllerTick == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.ControllerTick)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
