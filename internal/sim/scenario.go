package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario scripts the feeder's inputs, one frame per main loop iteration.
// Each frame is one millisecond of simulated time.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Zero selects the configured default.
	StepWaitTicks  int `yaml:"step_wait_ticks"`
	MaxBounce      int `yaml:"max_bounce"`
	FaultStepLimit int `yaml:"fault_step_limit"`

	// Initial sensor state.
	Hole    bool `yaml:"hole"`
	Tension bool `yaml:"tension"`

	Frames []Frame `yaml:"frames"`
}

// Frame is the input of one iteration. Levels (button, hole, tension) are held
// until a later frame changes them; trigger and tick fire for this iteration only.
type Frame struct {
	Repeat  int    `yaml:"repeat"` // run this frame N times; 0 means once
	Button  *bool  `yaml:"button"` // pressed
	Trigger bool   `yaml:"trigger"`
	Tick    bool   `yaml:"tick"`
	Hole    *bool  `yaml:"hole"`
	Tension *bool  `yaml:"tension"`
	Fail    string `yaml:"fail"` // "hole", "tension" or "button": next read of that input fails
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks required fields and ranges.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Frames) == 0 {
		return errors.New("at least one frame is required")
	}
	if s.StepWaitTicks < 0 || s.StepWaitTicks > 255 {
		return fmt.Errorf("step_wait_ticks must be between 0 and 255, got %d", s.StepWaitTicks)
	}
	if s.MaxBounce < 0 || s.MaxBounce > 254 {
		return fmt.Errorf("max_bounce must be between 0 and 254, got %d", s.MaxBounce)
	}
	if s.FaultStepLimit < 0 {
		return fmt.Errorf("fault_step_limit must be >= 0, got %d", s.FaultStepLimit)
	}
	for i, f := range s.Frames {
		if f.Repeat < 0 {
			return fmt.Errorf("frame %d: repeat must be >= 0, got %d", i, f.Repeat)
		}
		switch f.Fail {
		case "", "hole", "tension", "button":
		default:
			return fmt.Errorf("frame %d: unknown fail target %q", i, f.Fail)
		}
	}
	return nil
}

// Iterations returns the number of main loop iterations the scenario runs.
func (s *Scenario) Iterations() int {
	n := 0
	for _, f := range s.Frames {
		n += max(f.Repeat, 1)
	}
	return n
}
