// Command metaballs runs the metaball iso-contour pipeline headless. It can
// stream every frame over a websocket, log per-tick statistics as CSV and
// export the final meshes as STL and PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/soypat/metaballs/config"
	"github.com/soypat/metaballs/pipeline"
	"github.com/soypat/metaballs/render"
	"github.com/soypat/metaballs/snapshot"
	"github.com/soypat/metaballs/stream"
	"github.com/soypat/metaballs/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	ticks := flag.Int("ticks", -1, "Stop after N ticks, 0 = run until interrupted (-1 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, meshes and config snapshot (overrides config)")
	streamAddr := flag.String("stream", "", "Serve frames over websocket on this address, e.g. :8080 (overrides config)")
	workers := flag.Int("workers", -1, "Goroutines for field sampling, 0 = GOMAXPROCS (-1 = use config)")
	logFormat := flag.String("log-format", "json", "Log format: json or text")
	flag.Parse()

	var handler slog.Handler
	switch *logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, nil)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown log format %q\n", *logFormat)
		os.Exit(2)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *ticks >= 0 {
		cfg.Run.Ticks = *ticks
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *streamAddr != "" {
		cfg.Stream.Addr = *streamAddr
	}
	if *workers >= 0 {
		cfg.Mesher.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid flags", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts, balls := pipeline.OptionsFromConfig(cfg)
	opts.Logger = logger
	p, err := pipeline.New(opts, balls)
	if err != nil {
		return err
	}

	om, err := telemetry.NewOutputManager(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	if cfg.Stream.Addr != "" {
		hub := stream.NewHub(logger)
		mux := http.NewServeMux()
		mux.Handle(cfg.Stream.Path, hub)
		srv := &http.Server{Addr: cfg.Stream.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("stream server", "error", err)
			}
		}()
		defer func() {
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		p.AddPresenter(hub)
		logger.Info("streaming frames", "addr", cfg.Stream.Addr, "path", cfg.Stream.Path)
	}

	logger.Info("starting run",
		"ticks", cfg.Run.Ticks,
		"tick_rate", cfg.Run.TickRate,
		"output_dir", cfg.Output.Dir,
	)
	perfEvery := uint64(max(cfg.Run.PerfWindow, 1))
	err = p.Run(ctx, cfg.Run.Ticks, cfg.Derived.TickInterval, func(s telemetry.TickStats) error {
		if err := om.WriteTick(s); err != nil {
			return err
		}
		if s.Tick%perfEvery == 0 {
			return om.WritePerf(p.Perf(), s.Tick)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted", "tick", p.Tick())
	} else if err != nil {
		return err
	}
	logger.Info("run finished", "tick", p.Tick(), slog.Any("perf", p.Perf()))
	return export(cfg, om, p, logger)
}

// export writes the meshes of the last tick to the output directory.
func export(cfg *config.Config, om *telemetry.OutputManager, p *pipeline.Pipeline, logger *slog.Logger) error {
	if om == nil || p.Tick() == 0 {
		return nil
	}
	frame := p.Frame()
	if cfg.Output.STL {
		for _, l := range frame.Layers {
			path := om.Path(fmt.Sprintf("%s.stl", l.Name))
			err := render.CreateSTL(path, l.Mesh)
			if errors.Is(err, render.ErrEmptyMesh) {
				logger.Warn("skipping empty layer", "layer", l.Name)
				continue
			} else if err != nil {
				return err
			}
			logger.Info("wrote mesh", "path", path, "triangles", l.Mesh.TriangleCount())
		}
	}
	if cfg.Output.PNG {
		path := om.Path("frame.png")
		err := snapshot.SavePNG(path, frame, snapshot.Options{
			Width:  cfg.Output.PNGSize,
			Height: max(1, cfg.Output.PNGSize*cfg.Grid.Height/cfg.Grid.Width),
			Extent: p.Source().Domain,
		})
		if err != nil {
			return err
		}
		logger.Info("wrote snapshot", "path", path)
	}
	return nil
}
