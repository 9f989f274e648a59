package sim

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files, run:
//
//	go test ./internal/sim -update
func TestRun_Golden(t *testing.T) {
	names := []string{
		"single-feed",
		"button-over-hole",
		"fault-acknowledge",
		"sensor-error-retry",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			sc, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			tr, err := Run(sc)
			require.NoError(t, err)

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, sc.Name, []byte(tr.String()))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "single-feed.yaml"))
	require.NoError(t, err)

	a, err := Run(sc)
	require.NoError(t, err)
	b, err := Run(sc)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestRun_StuckPhaseEndsMidCycle(t *testing.T) {
	sc := &Scenario{
		Name:          "stuck",
		StepWaitTicks: 1,
		Hole:          true,
		Frames: []Frame{
			{Trigger: true},
			{Tick: true, Repeat: 4},
		},
	}
	tr, err := Run(sc)
	require.NoError(t, err)
	assert.Equal(t, feed.PhaseAdvanceClear, tr.Final.Phase)
	assert.Equal(t, 5, tr.Gear)
	assert.Equal(t, uint64(1), tr.Cycles)
}

func TestScenario_Iterations(t *testing.T) {
	sc := &Scenario{Frames: []Frame{{}, {Repeat: 3}, {Repeat: 1}}}
	assert.Equal(t, 5, sc.Iterations())
}

func TestParseScenario_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing_name", "frames: [{}]\n"},
		{"no_frames", "name: x\n"},
		{"unknown_field", "name: x\nframes: [{}]\nspeed: 3\n"},
		{"unknown_frame_field", "name: x\nframes: [{tock: true}]\n"},
		{"bad_fail_target", "name: x\nframes: [{fail: motor}]\n"},
		{"negative_repeat", "name: x\nframes: [{repeat: -1}]\n"},
		{"step_wait_too_large", "name: x\nstep_wait_ticks: 300\nframes: [{}]\n"},
		{"max_bounce_too_large", "name: x\nmax_bounce: 255\nframes: [{}]\n"},
		{"negative_fault_limit", "name: x\nfault_step_limit: -1\nframes: [{}]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseScenario_HeldLevels(t *testing.T) {
	sc, err := ParseScenario([]byte("name: x\nframes:\n  - {button: true, hole: false}\n  - {tick: true}\n"))
	require.NoError(t, err)
	require.NotNil(t, sc.Frames[0].Button)
	assert.True(t, *sc.Frames[0].Button)
	require.NotNil(t, sc.Frames[0].Hole)
	assert.False(t, *sc.Frames[0].Hole)
	assert.Nil(t, sc.Frames[1].Button, "unset levels are held, not cleared")
}

func TestDriver_PullUpDefaultsHigh(t *testing.T) {
	d := NewDriver()
	require.NoError(t, d.SetupPin(8, gpio.InputPullUp))
	lvl, err := d.ReadPin(8)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, lvl)

	d.Set(8, gpio.Low)
	lvl, _ = d.ReadPin(8)
	assert.Equal(t, gpio.Low, lvl)
}

func TestDriver_PulseOnRisingEdgeOnly(t *testing.T) {
	d := NewDriver()
	var pulses []int
	d.OnPulse(func(pin int) { pulses = append(pulses, pin) })
	require.NoError(t, d.SetupPin(5, gpio.Output))

	_ = d.WritePin(5, gpio.High)
	_ = d.WritePin(5, gpio.High)
	_ = d.WritePin(5, gpio.Low)
	_ = d.WritePin(5, gpio.High)
	_ = d.WritePin(9, gpio.High) // not an output

	assert.Equal(t, []int{5, 5}, pulses)
}

func TestDriver_FailNextReadOnce(t *testing.T) {
	d := NewDriver()
	sentinel := errors.New("boom")
	d.FailNextRead(8, sentinel)

	_, err := d.ReadPin(8)
	assert.ErrorIs(t, err, sentinel)
	_, err = d.ReadPin(8)
	assert.NoError(t, err)
}
