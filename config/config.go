// Package config provides configuration loading for the metaballs command.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/soypat/metaballs"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all run configuration parameters.
type Config struct {
	Grid   GridConfig    `yaml:"grid"`
	Layers []LayerConfig `yaml:"layers"`
	Balls  []BallConfig  `yaml:"balls"`
	Mesher MesherConfig  `yaml:"mesher"`
	Run    RunConfig     `yaml:"run"`
	Output OutputConfig  `yaml:"output"`
	Stream StreamConfig  `yaml:"stream"`

	// Derived values (computed after load, not in YAML).
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig sets the sampling grid. Width and height must be even.
type GridConfig struct {
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	Spacing float64 `yaml:"spacing"`
}

// LayerConfig is one iso threshold. Empty names are replaced by layerN.
type LayerConfig struct {
	Name      string  `yaml:"name"`
	Threshold float64 `yaml:"threshold"`
}

// BallConfig is the initial state of one ball.
type BallConfig struct {
	Pos    Vec2    `yaml:"pos,flow"`
	Radius float64 `yaml:"radius"`
	Vel    Vec2    `yaml:"vel,flow"`
}

// Vec2 is an [x, y] pair.
type Vec2 [2]float64

func (v Vec2) R2() r2.Vec { return r2.Vec{X: v[0], Y: v[1]} }

type MesherConfig struct {
	Bounds  string `yaml:"bounds"`
	Workers int    `yaml:"workers"`
}

type RunConfig struct {
	// Ticks is the number of ticks to run, 0 runs until interrupted.
	Ticks int `yaml:"ticks"`
	// TickRate caps ticks per second, 0 runs as fast as possible.
	TickRate   float64 `yaml:"tick_rate"`
	LogEvery   int     `yaml:"log_every"`
	PerfWindow int     `yaml:"perf_window"`
}

type OutputConfig struct {
	// Dir is the output directory. Empty disables all file output.
	Dir     string `yaml:"dir"`
	STL     bool   `yaml:"stl"`
	PNG     bool   `yaml:"png"`
	PNGSize int    `yaml:"png_size"`
}

type StreamConfig struct {
	// Addr is the websocket listen address. Empty disables streaming.
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	Bounds       metaballs.Bounds
	TickInterval time.Duration
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. Unknown keys in the
// user file are an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := cfg.overlay(data); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is like Load with the user configuration given as YAML text.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := cfg.overlay(data); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay decodes data into c. Only fields present in data are overwritten.
func (c *Config) overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if errors.Is(err, io.EOF) {
		return nil // Empty document.
	}
	return err
}

func (c *Config) finish() error {
	for i := range c.Layers {
		if c.Layers[i].Name == "" {
			c.Layers[i].Name = fmt.Sprintf("layer%d", i)
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config. c must be
// valid.
func (c *Config) computeDerived() {
	c.Derived.Bounds, _ = metaballs.ParseBounds(c.Mesher.Bounds)
	c.Derived.TickInterval = 0
	if c.Run.TickRate > 0 {
		c.Derived.TickInterval = time.Duration(float64(time.Second) / c.Run.TickRate)
	}
}

// Validate reports the first problem found in c. The error wraps ErrInvalid.
func (c *Config) Validate() error {
	g := c.Grid
	if g.Width < 2 || g.Height < 2 || g.Width%2 != 0 || g.Height%2 != 0 {
		return fmt.Errorf("%w: grid %dx%d: %w", ErrInvalid, g.Width, g.Height, metaballs.ErrGridDimensions)
	}
	if !(g.Spacing > 0) || math.IsInf(g.Spacing, 1) {
		return fmt.Errorf("%w: grid spacing %g: %w", ErrInvalid, g.Spacing, metaballs.ErrGridSpacing)
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalid)
	}
	names := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		if !finite(l.Threshold) {
			return fmt.Errorf("%w: layer %d threshold %g", ErrInvalid, i, l.Threshold)
		}
		if names[l.Name] {
			return fmt.Errorf("%w: duplicate layer name %q", ErrInvalid, l.Name)
		}
		names[l.Name] = true
	}
	for i, b := range c.Balls {
		if !finite(b.Radius) || b.Radius < 0 {
			return fmt.Errorf("%w: ball %d radius %g", ErrInvalid, i, b.Radius)
		}
		if !finite(b.Pos[0]) || !finite(b.Pos[1]) || !finite(b.Vel[0]) || !finite(b.Vel[1]) {
			return fmt.Errorf("%w: ball %d has non-finite position or velocity", ErrInvalid, i)
		}
	}
	if _, err := metaballs.ParseBounds(c.Mesher.Bounds); err != nil {
		return fmt.Errorf("%w: mesher: %v", ErrInvalid, err)
	}
	if c.Mesher.Workers < 0 {
		return fmt.Errorf("%w: mesher workers %d", ErrInvalid, c.Mesher.Workers)
	}
	r := c.Run
	if r.Ticks < 0 || r.LogEvery < 0 || r.PerfWindow < 0 || !(r.TickRate >= 0) || math.IsInf(r.TickRate, 1) {
		return fmt.Errorf("%w: run ticks=%d tick_rate=%g log_every=%d perf_window=%d",
			ErrInvalid, r.Ticks, r.TickRate, r.LogEvery, r.PerfWindow)
	}
	if c.Output.PNG && c.Output.PNGSize < 16 {
		return fmt.Errorf("%w: png_size %d too small", ErrInvalid, c.Output.PNGSize)
	}
	if c.Stream.Addr != "" && (c.Stream.Path == "" || c.Stream.Path[0] != '/') {
		return fmt.Errorf("%w: stream path %q must start with /", ErrInvalid, c.Stream.Path)
	}
	return nil
}

// SourceBalls returns the configured initial ball states.
func (c *Config) SourceBalls() []metaballs.Ball {
	balls := make([]metaballs.Ball, len(c.Balls))
	for i, b := range c.Balls {
		balls[i] = metaballs.Ball{Pos: b.Pos.R2(), Radius: b.Radius, Vel: b.Vel.R2()}
	}
	return balls
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
