package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/tapefeeder/internal/config"
	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/events"
	"github.com/cjeanneret/tapefeeder/internal/feeder"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/hw/serial"
	"github.com/cjeanneret/tapefeeder/internal/sim"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tapefeeder:", err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	configPath string
	stepWait   int
	maxBounce  int
	debugLevel int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tapefeeder",
		Short: "Film tape feeder controller",
		Long: `Drives a two-motor film tape feeder: on each feed request the gear advances
the tape by one sprocket hole, then the rewinder takes up the film until its
tension sensor is satisfied.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateCLIOverrides(opts.stepWait, opts.maxBounce, opts.debugLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	cmd.PersistentFlags().IntVar(&opts.stepWait, "step-wait", 0, "override ticks between motor steps (1-255)")
	cmd.PersistentFlags().IntVar(&opts.maxBounce, "max-bounce", 0, "override button debounce window in ms (1-254)")
	cmd.PersistentFlags().IntVar(&opts.debugLevel, "debug", -1, "override debug level (0-4)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSimulateCommand(opts))
	cmd.AddCommand(newPortsCommand())
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the feeder on real or mock GPIO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runFeeder(ctx, cfg, cmd.OutOrStdout())
		},
	}
}

func newSimulateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scripted scenario on simulated hardware and print the trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.debugLevel >= 0 {
				debug.Init(opts.debugLevel)
			}
			sc, err := sim.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if opts.stepWait > 0 {
				sc.StepWaitTicks = opts.stepWait
			}
			if opts.maxBounce > 0 {
				sc.MaxBounce = opts.maxBounce
			}
			tr, err := sim.Run(sc)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), tr.String())
			return err
		},
	}
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports usable for the phase log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.ValidateConfigPath(opts.configPath); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	cfg.Apply(overridesFrom(opts))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CLI override: %w", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	return cfg, nil
}

func runFeeder(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}()

	debug.Step(2, "Opening phase log")
	logOut, closeLog, err := openPhaseLog(cfg, stdout)
	if err != nil {
		return err
	}
	defer closeLog()
	format, err := events.ParseFormat(cfg.Serial.Format)
	if err != nil {
		return err
	}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()
	sink := events.NewSink(logOut, format)
	go func() {
		if err := sink.Drain(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			debug.Error(err)
		}
	}()

	debug.Step(3, "Building feeder")
	wiring := feeder.ConfigFrom(cfg)
	debug.PrintStruct("Gear stepper", wiring.Gear)
	debug.PrintStruct("Rewinder stepper", wiring.Rewinder)
	debug.PrintStruct("Sensors", wiring.Sensors)
	f, err := feeder.New(drv, wiring, feeder.WithBus(bus))
	if err != nil {
		return fmt.Errorf("init feeder failed: %w", err)
	}

	debug.Step(4, "Starting time base and trigger line")
	if err := f.StartProducers(ctx, drv); err != nil {
		return fmt.Errorf("start producers failed: %w", err)
	}

	debug.Section("Feeder running")
	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	debug.Info("Stopped after %d feed cycles (%d I/O errors)", f.Cycle(), f.Errors())
	return nil
}

// openPhaseLog returns the serial port when one is configured, stdout otherwise.
func openPhaseLog(cfg *config.Config, stdout io.Writer) (io.Writer, func(), error) {
	port, err := serial.Open(serial.Config{Device: cfg.Serial.Device, Baud: cfg.Serial.Baud})
	if errors.Is(err, serial.ErrNoDevice) {
		return stdout, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	debug.Value("Serial device", cfg.Serial.Device)
	return port, func() {
		if err := port.Close(); err != nil {
			debug.Error(fmt.Errorf("closing serial port failed: %w", err))
		}
	}, nil
}

// validateCLIOverrides checks the override flags. Zero (or -1 for debug) means
// "use config value".
func validateCLIOverrides(stepWait, maxBounce, debugLevel int) error {
	if stepWait != 0 && (stepWait < 1 || stepWait > 255) {
		return fmt.Errorf("step-wait must be between 1 and 255, got %d", stepWait)
	}
	if maxBounce != 0 && (maxBounce < 1 || maxBounce > 254) {
		return fmt.Errorf("max-bounce must be between 1 and 254, got %d", maxBounce)
	}
	if debugLevel != -1 && (debugLevel < 0 || debugLevel > 4) {
		return fmt.Errorf("debug must be between 0 and 4, got %d", debugLevel)
	}
	return nil
}

func overridesFrom(opts *rootOptions) config.Overrides {
	o := config.Overrides{StepWaitTicks: opts.stepWait, MaxBounce: opts.maxBounce}
	if opts.debugLevel >= 0 {
		level := opts.debugLevel
		o.DebugLevel = &level
	}
	return o
}
