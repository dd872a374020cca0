package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	physarum "github.com/DenizBicer/Physarum"
	"github.com/DenizBicer/Physarum/config"
	"github.com/DenizBicer/Physarum/gpu"
	"github.com/DenizBicer/Physarum/shaders"
	"github.com/DenizBicer/Physarum/telemetry"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	frames := flag.Int("frames", 0, "Stop after N frames (0 = until the window closes)")
	headless := flag.Bool("headless", false, "Run without a window (needs -frames)")
	telemetryOut := flag.String("telemetry", "", "Write trail statistics CSV to this path")
	stimuliPath := flag.String("stimuli", "", "Stimuli image, overrides physarum.stimuli_path")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	presetPath := flag.String("preset", "", "Load behaviours from a preset JSON instead of the config")
	savePreset := flag.String("save-preset", "", "Save the behaviours to this preset JSON on exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *stimuliPath != "" {
		cfg.Physarum.StimuliPath = *stimuliPath
	}
	if *telemetryOut != "" {
		cfg.Telemetry.Output = *telemetryOut
		if cfg.Telemetry.Every == 0 {
			cfg.Telemetry.Every = 60
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.WriteYAML(*writeConfig); err != nil {
			slog.Error("failed to write config", "error", err)
			os.Exit(1)
		}
		slog.Info("config written", "path", *writeConfig)
		return
	}

	if *headless && *frames <= 0 {
		slog.Error("-headless needs -frames")
		os.Exit(2)
	}

	opts := runOptions{
		frames:     *frames,
		headless:   *headless,
		presetPath: *presetPath,
		savePreset: *savePreset,
	}
	if err := run(cfg, opts); err != nil {
		slog.Error("physarum failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	frames     int
	headless   bool
	presetPath string
	savePreset string
}

func run(cfg *config.Config, opts runOptions) error {
	var win *gpu.Window
	if !opts.headless {
		var err error
		win, err = gpu.NewWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title)
		if err != nil {
			return err
		}
		defer win.Destroy()
	}

	device, err := gpu.Open(win)
	if err != nil {
		return err
	}
	defer device.Release()

	shader, err := device.NewShader(shaders.PhysarumProgram())
	if err != nil {
		return err
	}
	defer shader.Release()

	var sink *telemetry.CSVWriter
	if cfg.Telemetry.Output != "" {
		sink, err = telemetry.CreateCSV(cfg.Telemetry.Output)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	modules := []physarum.Module{
		physarum.LoggingModule{Prefix: cfg.Log.Prefix, Debug: cfg.Log.Debug},
		physarum.TimeModule{},
		physarum.LifecycleModule{},
		physarum.PhysarumModule{Device: device, Seed: cfg.Physarum.Seed},
		frameLimitModule{Frames: opts.frames},
		presetModule{Save: opts.savePreset},
	}
	if sink != nil {
		modules = append(modules, physarum.TelemetryModule{
			Every:     cfg.Telemetry.Every,
			Threshold: cfg.Telemetry.Threshold,
			Sink:      sink,
		})
	}

	var presenter *gpu.Presenter
	if win != nil {
		w, h := win.FramebufferSize()
		presenter, err = gpu.NewPresenter(device, shaders.PresentWGSL, w, h)
		if err != nil {
			return err
		}
		defer presenter.Release()
		modules = append(modules, windowModule{Window: win, Presenter: presenter})
	}

	app := physarum.NewAppBuilder().UseModule(modules...).Build()
	if opts.presetPath != "" {
		entities, err := physarum.LoadPreset(app.Commands(), opts.presetPath, shader)
		if err != nil {
			return err
		}
		slog.Info("preset loaded", "path", opts.presetPath, "behaviours", len(entities))
	} else {
		behaviour, err := cfg.Physarum.Behaviour(shader)
		if err != nil {
			return err
		}
		app.Commands().AddEntity(behaviour, cfg.Window.Material())
	}
	app.FlushCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return app.Run(ctx)
}
