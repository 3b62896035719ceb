package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/soypat/metaballs"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Grid.Width != 400 || cfg.Grid.Height != 400 || cfg.Grid.Spacing != 1 {
		t.Errorf("default grid %+v", cfg.Grid)
	}
	balls := cfg.SourceBalls()
	if len(balls) != 6 {
		t.Fatalf("got %d default balls, want 6", len(balls))
	}
	want := metaballs.Ball{Pos: r2.Vec{X: 25, Y: 25}, Radius: 1.4, Vel: r2.Vec{X: 0.87, Y: 1.111}}
	if balls[3] != want {
		t.Errorf("ball 3 = %+v, want %+v", balls[3], want)
	}
	if len(cfg.Layers) == 0 {
		t.Error("no default layers")
	}
	if cfg.Derived.Bounds != metaballs.BoundsLegacy {
		t.Errorf("default bounds %v", cfg.Derived.Bounds)
	}
	if cfg.Derived.TickInterval != time.Second/60 {
		t.Errorf("tick interval %v", cfg.Derived.TickInterval)
	}
}

func TestParseOverlay(t *testing.T) {
	cfg, err := Parse([]byte(`
grid:
  width: 64
layers:
  - threshold: 2
  - name: rim
    threshold: 0.25
balls:
  - {pos: [1, 2], radius: 3, vel: [0, 0]}
mesher:
  bounds: symmetric
run:
  tick_rate: 0
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Grid.Width != 64 || cfg.Grid.Height != 400 {
		t.Errorf("grid %+v: want width overridden and height kept", cfg.Grid)
	}
	wantLayers := []LayerConfig{{Name: "layer0", Threshold: 2}, {Name: "rim", Threshold: 0.25}}
	if !reflect.DeepEqual(cfg.Layers, wantLayers) {
		t.Errorf("layers %+v, want %+v", cfg.Layers, wantLayers)
	}
	if len(cfg.Balls) != 1 || cfg.Balls[0].Pos != (Vec2{1, 2}) {
		t.Errorf("balls %+v", cfg.Balls)
	}
	if cfg.Derived.Bounds != metaballs.BoundsSymmetric {
		t.Errorf("bounds %v", cfg.Derived.Bounds)
	}
	if cfg.Derived.TickInterval != 0 {
		t.Errorf("tick interval %v, want 0", cfg.Derived.TickInterval)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	def, _ := Load("")
	if !reflect.DeepEqual(cfg, def) {
		t.Error("empty document changed the defaults")
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("grid:\n  widht: 10\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "odd width", yaml: "grid: {width: 33}", wantErr: metaballs.ErrGridDimensions},
		{name: "tiny height", yaml: "grid: {height: 0}", wantErr: metaballs.ErrGridDimensions},
		{name: "zero spacing", yaml: "grid: {spacing: 0}", wantErr: metaballs.ErrGridSpacing},
		{name: "no layers", yaml: "layers: []", wantErr: ErrInvalid},
		{name: "duplicate layer", yaml: "layers: [{name: a, threshold: 1}, {name: a, threshold: 2}]", wantErr: ErrInvalid},
		{name: "nan threshold", yaml: "layers: [{threshold: .nan}]", wantErr: ErrInvalid},
		{name: "negative radius", yaml: "balls: [{pos: [0, 0], radius: -1, vel: [0, 0]}]", wantErr: ErrInvalid},
		{name: "bad bounds", yaml: "mesher: {bounds: diagonal}", wantErr: ErrInvalid},
		{name: "negative workers", yaml: "mesher: {workers: -1}", wantErr: ErrInvalid},
		{name: "negative ticks", yaml: "run: {ticks: -5}", wantErr: ErrInvalid},
		{name: "small png", yaml: "output: {png: true, png_size: 4}", wantErr: ErrInvalid},
		{name: "stream path", yaml: "stream: {addr: ':8080', path: ws}", wantErr: ErrInvalid},
		{name: "no balls", yaml: "balls: []", wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte("layers: [{name: only, threshold: 0.75}]\nmesher: {bounds: symmetric}"))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("reloaded config differs:\n got %+v\nwant %+v", got, cfg)
	}
}
