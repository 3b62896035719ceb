// Package metaballs samples a time-varying 2D metaball field on a regular
// grid and classifies it against iso thresholds. Package render turns the
// classified grid into triangle meshes.
package metaballs

import (
	"github.com/soypat/metaballs/internal/d2"
	"gonum.org/v1/gonum/spatial/r2"
)

// Ball is a moving point source. Its contribution to the field at distance d
// from Pos is Radius²/d².
type Ball struct {
	Pos    r2.Vec
	Radius float64
	Vel    r2.Vec
}

// Evaluate returns the contribution of the ball at (x, y). The result is
// +Inf at the ball center (NaN if Radius is also zero).
func (b Ball) Evaluate(x, y float64) float64 {
	dx := b.Pos.X - x
	dy := b.Pos.Y - y
	return b.Radius * b.Radius / (dx*dx + dy*dy)
}

// Source is the set of balls making up the field. Balls bounce off the
// edges of Domain.
type Source struct {
	Balls  []Ball
	Domain r2.Box
}

// NewSource returns a Source whose balls bounce inside domain. The balls
// are copied.
func NewSource(domain r2.Box, balls ...Ball) *Source {
	return &Source{
		Balls:  append([]Ball(nil), balls...),
		Domain: domain,
	}
}

// SourceFor returns a Source whose domain is the extent of field f.
func SourceFor(f *Field, balls ...Ball) *Source {
	return NewSource(d2.Centered(f.HalfExtent()), balls...)
}

// Step advances every ball by its velocity. A velocity component is negated
// when the new position lies outside the domain along that axis. The
// position itself is not corrected so a ball may sit outside the domain for
// a tick before it turns around.
func (s *Source) Step() {
	for i := range s.Balls {
		b := &s.Balls[i]
		b.Pos = r2.Add(b.Pos, b.Vel)
		if b.Pos.X > s.Domain.Max.X || b.Pos.X < s.Domain.Min.X {
			b.Vel.X = -b.Vel.X
		}
		if b.Pos.Y > s.Domain.Max.Y || b.Pos.Y < s.Domain.Min.Y {
			b.Vel.Y = -b.Vel.Y
		}
	}
}

// Evaluate returns the field value at (x, y), the sum of every ball's
// contribution. It is safe for concurrent use as long as Step is not
// running.
func (s *Source) Evaluate(x, y float64) float64 {
	var sum float64
	for _, b := range s.Balls {
		sum += b.Evaluate(x, y)
	}
	return sum
}
