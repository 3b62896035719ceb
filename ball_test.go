package metaballs_test

import (
	"math"
	"testing"

	"github.com/soypat/metaballs"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestSourceEvaluate(t *testing.T) {
	src := metaballs.NewSource(r2.Box{Min: r2.Vec{X: -10, Y: -10}, Max: r2.Vec{X: 10, Y: 10}},
		metaballs.Ball{Pos: r2.Vec{X: 0, Y: 0}, Radius: 1},
		metaballs.Ball{Pos: r2.Vec{X: 3, Y: 4}, Radius: 2},
	)
	for _, test := range []struct {
		x, y float64
		want float64
	}{
		{x: 1, y: 0, want: 1 + 4.0/20},
		{x: 3, y: 3, want: 1.0/18 + 4},
		{x: -2, y: 0, want: 1.0/4 + 4.0/(25+16)},
	} {
		got := src.Evaluate(test.x, test.y)
		if math.Abs(got-test.want) > 1e-12 {
			t.Errorf("Evaluate(%g,%g) = %g, want %g", test.x, test.y, got, test.want)
		}
	}
	if got := src.Evaluate(0, 0); !math.IsInf(got, 1) {
		t.Errorf("Evaluate at ball center = %g, want +Inf", got)
	}
}

func TestBallDecay(t *testing.T) {
	b := metaballs.Ball{Pos: r2.Vec{X: 1, Y: -1}, Radius: 3}
	prev := math.Inf(1)
	for d := 0.25; d < 100; d *= 1.5 {
		v := b.Evaluate(1+d, -1)
		if v <= 0 || v >= prev {
			t.Fatalf("contribution at distance %g is %g, previous %g", d, v, prev)
		}
		prev = v
	}
	if got := b.Evaluate(4, -1); got != 1 {
		t.Errorf("contribution at distance Radius = %g, want 1", got)
	}
}

func TestSourceStep(t *testing.T) {
	domain := r2.Box{Min: r2.Vec{X: -2, Y: -2}, Max: r2.Vec{X: 2, Y: 2}}
	src := metaballs.NewSource(domain,
		metaballs.Ball{Pos: r2.Vec{X: 1.5, Y: 0}, Radius: 1, Vel: r2.Vec{X: 1, Y: 0.5}},
		metaballs.Ball{Pos: r2.Vec{X: 0, Y: -1.5}, Radius: 1, Vel: r2.Vec{X: 0, Y: -1}},
	)
	src.Step()
	a, b := src.Balls[0], src.Balls[1]
	// Position is not clamped, only the offending velocity component flips.
	if a.Pos != (r2.Vec{X: 2.5, Y: 0.5}) || a.Vel != (r2.Vec{X: -1, Y: 0.5}) {
		t.Errorf("ball 0 after step: pos %v vel %v", a.Pos, a.Vel)
	}
	if b.Pos != (r2.Vec{X: 0, Y: -2.5}) || b.Vel != (r2.Vec{X: 0, Y: 1}) {
		t.Errorf("ball 1 after step: pos %v vel %v", b.Pos, b.Vel)
	}
	src.Step()
	if a := src.Balls[0]; a.Pos != (r2.Vec{X: 1.5, Y: 1}) || a.Vel != (r2.Vec{X: -1, Y: 0.5}) {
		t.Errorf("ball 0 after second step: pos %v vel %v", a.Pos, a.Vel)
	}
}

func TestSourceForDomain(t *testing.T) {
	f, err := metaballs.NewField(400, 200, 1)
	if err != nil {
		t.Fatal(err)
	}
	balls := []metaballs.Ball{{Radius: 1}}
	src := metaballs.SourceFor(f, balls...)
	want := r2.Box{Min: r2.Vec{X: -200, Y: -100}, Max: r2.Vec{X: 200, Y: 100}}
	if src.Domain != want {
		t.Errorf("domain %v, want %v", src.Domain, want)
	}
	src.Balls[0].Radius = 2
	if balls[0].Radius != 1 {
		t.Error("source shares ball storage with caller")
	}
}
