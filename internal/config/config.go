package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// BCM GPIO numbers addressable through go-rpio.
const (
	MinPin = 0
	MaxPin = 53
)

// Defaults applied when a field is left at zero.
const (
	DefaultMaxBounce     = 10
	DefaultStepWaitTicks = 10
	DefaultTickPeriodUs  = 1000
	DefaultDirSettleNs   = 300
	DefaultPulseWidthNs  = 1000
	DefaultBaud          = 115200
)

// TriggerConfig holds the two feed request inputs.
type TriggerConfig struct {
	ButtonPin int `yaml:"button_pin"` // push button, active LOW, debounced by polling
	InputPin  int `yaml:"input_pin"`  // external trigger line, falling edge
	MaxBounce int `yaml:"max_bounce"` // button debounce window in polls (1 ms each)
}

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin   int  `yaml:"step_pin"`
	DirPin    int  `yaml:"dir_pin"`
	EnablePin int  `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	InvertDir bool `yaml:"invert_dir"` // DIR high means backward
}

// SensorsConfig holds the photo-interrupter inputs.
type SensorsConfig struct {
	HolePin    int `yaml:"hole_pin"`    // active LOW when a sprocket hole is present
	TensionPin int `yaml:"tension_pin"` // active HIGH when tension is adequate
}

// TimingConfig holds pacing and pulse timings.
type TimingConfig struct {
	TickPeriodUs   int `yaml:"tick_period_us"`   // time base period
	StepWaitTicks  int `yaml:"step_wait_ticks"`  // ticks between two motor steps
	DirSettleNs    int `yaml:"dir_settle_ns"`    // DIR setup time before STEP rises
	PulseWidthNs   int `yaml:"pulse_width_ns"`   // STEP high time
	FaultStepLimit int `yaml:"fault_step_limit"` // 0 = never give up
	LoopIdleUs     int `yaml:"loop_idle_us"`     // sleep per outer loop iteration, 0 = spin
}

// SerialConfig selects the diagnostic log port.
type SerialConfig struct {
	Device string `yaml:"device"` // empty = log to stdout only
	Baud   int    `yaml:"baud"`
	Format string `yaml:"format"` // "text" (S: lines) or "json"
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Trigger         TriggerConfig  `yaml:"trigger"`
	GearStepper     StepperConfig  `yaml:"gear_stepper"`
	RewinderStepper StepperConfig  `yaml:"rewinder_stepper"`
	Sensors         SensorsConfig  `yaml:"sensors"`
	Timing          TimingConfig   `yaml:"timing"`
	Serial          SerialConfig   `yaml:"serial"`
	Defaults        DefaultsConfig `yaml:"defaults"`
}

// Overrides are command line values applied over the file. Zero or nil means
// "keep the file value".
type Overrides struct {
	StepWaitTicks int
	MaxBounce     int
	DebugLevel    *int
}

// Default returns the feeder board's pin map and timings.
func Default() Config {
	return Config{
		Trigger:         TriggerConfig{ButtonPin: 3, InputPin: 2, MaxBounce: DefaultMaxBounce},
		GearStepper:     StepperConfig{StepPin: 5, DirPin: 4},
		RewinderStepper: StepperConfig{StepPin: 7, DirPin: 6, InvertDir: true},
		Sensors:         SensorsConfig{HolePin: 8, TensionPin: 9},
		Timing: TimingConfig{
			TickPeriodUs:  DefaultTickPeriodUs,
			StepWaitTicks: DefaultStepWaitTicks,
			DirSettleNs:   DefaultDirSettleNs,
			PulseWidthNs:  DefaultPulseWidthNs,
			LoopIdleUs:    50,
		},
		Serial:   SerialConfig{Baud: DefaultBaud, Format: "text"},
		Defaults: DefaultsConfig{DebugLevel: 1, MockGPIO: true},
	}
}

// ValidateConfigPath accepts only .yaml files located directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file over Default and returns the validated configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML over Default, fills zero values and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trigger.MaxBounce == 0 {
		c.Trigger.MaxBounce = DefaultMaxBounce
	}
	if c.Timing.StepWaitTicks == 0 {
		c.Timing.StepWaitTicks = DefaultStepWaitTicks
	}
	if c.Timing.TickPeriodUs == 0 {
		c.Timing.TickPeriodUs = DefaultTickPeriodUs
	}
	if c.Timing.DirSettleNs == 0 {
		c.Timing.DirSettleNs = DefaultDirSettleNs
	}
	if c.Timing.PulseWidthNs == 0 {
		c.Timing.PulseWidthNs = DefaultPulseWidthNs
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Serial.Format == "" {
		c.Serial.Format = "text"
	}
}

// Validate checks ranges and pin assignments.
func (c *Config) Validate() error {
	if c.Trigger.MaxBounce < 1 || c.Trigger.MaxBounce > 254 {
		return fmt.Errorf("trigger.max_bounce must be between 1 and 254, got %d", c.Trigger.MaxBounce)
	}
	if c.Timing.StepWaitTicks < 1 || c.Timing.StepWaitTicks > 255 {
		return fmt.Errorf("timing.step_wait_ticks must be between 1 and 255, got %d", c.Timing.StepWaitTicks)
	}
	if c.Timing.TickPeriodUs < 0 {
		return fmt.Errorf("timing.tick_period_us must be > 0, got %d", c.Timing.TickPeriodUs)
	}
	if c.Timing.DirSettleNs < 0 || c.Timing.PulseWidthNs < 0 {
		return errors.New("timing.dir_settle_ns and timing.pulse_width_ns must not be negative")
	}
	if c.Timing.FaultStepLimit < 0 {
		return fmt.Errorf("timing.fault_step_limit must be >= 0, got %d", c.Timing.FaultStepLimit)
	}
	if c.Timing.LoopIdleUs < 0 {
		return fmt.Errorf("timing.loop_idle_us must be >= 0, got %d", c.Timing.LoopIdleUs)
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be > 0, got %d", c.Serial.Baud)
	}
	if c.Serial.Format != "text" && c.Serial.Format != "json" {
		return fmt.Errorf("serial.format must be text or json, got %q", c.Serial.Format)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return c.validatePins()
}

type namedPin struct {
	name string
	pin  int
}

func (c *Config) validatePins() error {
	pins := []namedPin{
		{"trigger.button_pin", c.Trigger.ButtonPin},
		{"trigger.input_pin", c.Trigger.InputPin},
		{"gear_stepper.step_pin", c.GearStepper.StepPin},
		{"gear_stepper.dir_pin", c.GearStepper.DirPin},
		{"rewinder_stepper.step_pin", c.RewinderStepper.StepPin},
		{"rewinder_stepper.dir_pin", c.RewinderStepper.DirPin},
		{"sensors.hole_pin", c.Sensors.HolePin},
		{"sensors.tension_pin", c.Sensors.TensionPin},
	}
	if c.GearStepper.EnablePin != 0 {
		pins = append(pins, namedPin{"gear_stepper.enable_pin", c.GearStepper.EnablePin})
	}
	if c.RewinderStepper.EnablePin != 0 {
		pins = append(pins, namedPin{"rewinder_stepper.enable_pin", c.RewinderStepper.EnablePin})
	}

	used := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin < MinPin || p.pin > MaxPin {
			return fmt.Errorf("%s must be between %d and %d, got %d", p.name, MinPin, MaxPin, p.pin)
		}
		if other, ok := used[p.pin]; ok {
			return fmt.Errorf("%s and %s both use pin %d", other, p.name, p.pin)
		}
		used[p.pin] = p.name
	}
	return nil
}

// Apply mutates c with the non-zero overrides.
func (c *Config) Apply(o Overrides) {
	if o.StepWaitTicks > 0 {
		c.Timing.StepWaitTicks = o.StepWaitTicks
	}
	if o.MaxBounce > 0 {
		c.Trigger.MaxBounce = o.MaxBounce
	}
	if o.DebugLevel != nil {
		c.Defaults.DebugLevel = *o.DebugLevel
	}
}

// TickPeriod returns the time base period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Timing.TickPeriodUs) * time.Microsecond
}

// DirSettle returns the DIR setup time.
func (c *Config) DirSettle() time.Duration {
	return time.Duration(c.Timing.DirSettleNs) * time.Nanosecond
}

// PulseWidth returns the STEP high time.
func (c *Config) PulseWidth() time.Duration {
	return time.Duration(c.Timing.PulseWidthNs) * time.Nanosecond
}

// LoopIdle returns the outer loop's per-iteration sleep.
func (c *Config) LoopIdle() time.Duration {
	return time.Duration(c.Timing.LoopIdleUs) * time.Microsecond
}

// StepWait returns the ticks between steps.
func (c *Config) StepWait() uint8 {
	return uint8(c.Timing.StepWaitTicks)
}

// MaxBounce returns the button debounce window.
func (c *Config) MaxBounce() uint8 {
	return uint8(c.Trigger.MaxBounce)
}
