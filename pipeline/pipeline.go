// Package pipeline owns the per-tick extraction loop: step the balls,
// sample the field, then classify and mesh every layer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/metaballs"
	"github.com/soypat/metaballs/config"
	"github.com/soypat/metaballs/render"
	"github.com/soypat/metaballs/telemetry"
)

// LayerSpec names an iso threshold.
type LayerSpec struct {
	Name      string
	Threshold float64
}

// Options configures a Pipeline.
type Options struct {
	Width, Height int
	Spacing       float64
	Layers        []LayerSpec
	Bounds        metaballs.Bounds
	// Workers bounds the goroutines used to sample and classify the grid.
	// 0 means GOMAXPROCS, 1 runs everything on the calling goroutine.
	Workers int
	// LogEvery logs tick statistics every LogEvery ticks. 0 disables it.
	LogEvery   int
	PerfWindow int
	// Mesher defaults to render.MarchingSquares.
	Mesher render.Mesher
	Logger *slog.Logger
}

// OptionsFromConfig returns the pipeline options and initial balls
// described by cfg.
func OptionsFromConfig(cfg *config.Config) (Options, []metaballs.Ball) {
	layers := make([]LayerSpec, len(cfg.Layers))
	for i, l := range cfg.Layers {
		layers[i] = LayerSpec{Name: l.Name, Threshold: l.Threshold}
	}
	return Options{
		Width:      cfg.Grid.Width,
		Height:     cfg.Grid.Height,
		Spacing:    cfg.Grid.Spacing,
		Layers:     layers,
		Bounds:     cfg.Derived.Bounds,
		Workers:    cfg.Mesher.Workers,
		LogEvery:   cfg.Run.LogEvery,
		PerfWindow: cfg.Run.PerfWindow,
	}, cfg.SourceBalls()
}

// LayerMesh is the latest mesh of one layer.
type LayerMesh struct {
	Name      string
	Threshold float64
	Mesh      render.Mesh
}

// Frame is the set of layer meshes produced by one tick. Meshes in a frame
// are never modified after being handed out.
type Frame struct {
	Tick   uint64
	Layers []LayerMesh
}

// Presenter receives every frame the pipeline produces.
type Presenter interface {
	Present(Frame) error
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(Frame) error

func (fn PresenterFunc) Present(f Frame) error { return fn(f) }

type stage struct {
	spec  LayerSpec
	layer *metaballs.Layer
	mesh  render.Mesh
}

// Pipeline holds the source, field, layers and presented meshes of a run.
// It is not safe for concurrent use; Step must be called from a single
// goroutine.
type Pipeline struct {
	src        *metaballs.Source
	field      *metaballs.Field
	stages     []stage
	mesher     render.Mesher
	presenters []Presenter
	workers    int
	logEvery   int
	log        *slog.Logger
	perf       *telemetry.PerfCollector
	tick       uint64
}

// New builds a pipeline over a fresh grid. The balls are copied.
func New(opts Options, balls []metaballs.Ball) (*Pipeline, error) {
	field, err := metaballs.NewField(opts.Width, opts.Height, opts.Spacing)
	if err != nil {
		return nil, err
	}
	if len(opts.Layers) == 0 {
		return nil, errors.New("pipeline needs at least one layer")
	}
	p := &Pipeline{
		src:      metaballs.SourceFor(field, balls...),
		field:    field,
		mesher:   opts.Mesher,
		workers:  opts.Workers,
		logEvery: opts.LogEvery,
		log:      opts.Logger,
		perf:     telemetry.NewPerfCollector(opts.PerfWindow),
	}
	if p.mesher == nil {
		p.mesher = render.MarchingSquares{}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	for _, spec := range opts.Layers {
		l := &metaballs.Layer{Threshold: spec.Threshold, Bounds: opts.Bounds}
		p.stages = append(p.stages, stage{spec: spec, layer: l})
	}
	p.log.Info("pipeline created",
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
		slog.Float64("spacing", opts.Spacing),
		slog.Int("layers", len(p.stages)),
		slog.Int("balls", len(balls)),
		slog.String("bounds", opts.Bounds.String()),
		slog.Int("workers", opts.Workers),
	)
	return p, nil
}

// AddPresenter registers pr to receive every subsequent frame.
func (p *Pipeline) AddPresenter(pr Presenter) {
	p.presenters = append(p.presenters, pr)
}

// Step runs one tick and hands the new frame to every presenter. A
// presenter error is returned after the frame has been offered to all
// presenters; the tick itself is complete either way.
func (p *Pipeline) Step() (telemetry.TickStats, error) {
	p.perf.StartTick()
	p.perf.StartPhase(telemetry.PhaseStep)
	p.src.Step()

	p.perf.StartPhase(telemetry.PhaseField)
	p.field.UpdateParallel(p.src.Evaluate, p.workers)

	p.tick++
	stats := telemetry.TickStats{
		Tick:       p.tick,
		Balls:      len(p.src.Balls),
		GridPoints: p.field.Len(),
		Layers:     make([]telemetry.LayerStats, len(p.stages)),
	}
	for i := range p.stages {
		s := &p.stages[i]
		p.perf.StartPhase(telemetry.PhaseClassify)
		s.layer.ReclassifyParallel(p.field, p.workers)

		p.perf.StartPhase(telemetry.PhaseMesh)
		mesh, mstats := p.mesher.Build(p.field, s.layer)
		s.mesh = mesh
		stats.Layers[i] = telemetry.NewLayerStats(p.tick, s.spec.Name, s.spec.Threshold, s.layer.Count(), mesh, mstats)
	}

	p.perf.StartPhase(telemetry.PhasePresent)
	var errs []error
	frame := p.Frame()
	for _, pr := range p.presenters {
		if err := pr.Present(frame); err != nil {
			errs = append(errs, err)
		}
	}
	stats.Perf = p.perf.EndTick()

	if n := stats.NonFinite(); n > 0 {
		p.log.Warn("non-finite vertices", slog.Uint64("tick", p.tick), slog.Int("count", n))
	}
	if p.logEvery > 0 && p.tick%uint64(p.logEvery) == 0 {
		p.log.Info("tick", slog.Any("stats", stats), slog.Any("perf", p.perf.Stats()))
	}
	if len(errs) > 0 {
		return stats, fmt.Errorf("tick %d: presenting: %w", p.tick, errors.Join(errs...))
	}
	return stats, nil
}

// Run calls Step until ticks ticks have run (forever if ticks is 0), ctx
// is done or a tick fails. interval > 0 spaces ticks at least interval
// apart. onTick, if not nil, is called after every tick; an error from it
// stops the run.
func (p *Pipeline) Run(ctx context.Context, ticks int, interval time.Duration, onTick func(telemetry.TickStats) error) error {
	var pace <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pace = ticker.C
	}
	for n := 0; ticks == 0 || n < ticks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := p.Step()
		if err != nil {
			return err
		}
		if onTick != nil {
			if err := onTick(stats); err != nil {
				return err
			}
		}
		if pace != nil && (ticks == 0 || n+1 < ticks) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
	}
	return nil
}

// Frame returns the meshes of the last tick. Before the first tick every
// mesh is empty.
func (p *Pipeline) Frame() Frame {
	f := Frame{Tick: p.tick, Layers: make([]LayerMesh, len(p.stages))}
	for i, s := range p.stages {
		f.Layers[i] = LayerMesh{Name: s.spec.Name, Threshold: s.spec.Threshold, Mesh: s.mesh}
	}
	return f
}

// Tick returns the number of ticks run.
func (p *Pipeline) Tick() uint64 { return p.tick }

// Field returns the sampled grid. It is overwritten by the next Step.
func (p *Pipeline) Field() *metaballs.Field { return p.field }

// Source returns the ball set driving the field.
func (p *Pipeline) Source() *metaballs.Source { return p.src }

// Perf returns timing statistics over the collector window.
func (p *Pipeline) Perf() telemetry.PerfStats { return p.perf.Stats() }
