package metaballs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrGridDimensions = errors.New("grid width and height must be even and at least 2")
	ErrGridSpacing    = errors.New("grid spacing must be positive and finite")
)

// FieldFunc evaluates a scalar field at a point.
type FieldFunc func(x, y float64) float64

// Field is a regular grid of samples of a scalar field. Samples are stored
// row-major starting at the top row: index k = col + row*width.
type Field struct {
	width, height int
	spacing       float64
	positions     []r3.Vec
	values        []float64
}

// NewField returns a width by height grid of sample positions centered on the
// origin. Sample (col, row) sits at the center of its cell:
//
//	x = (col - width/2 + 0.5) * spacing
//	y = (height/2 - 1 - row + 0.5) * spacing
func NewField(width, height int, spacing float64) (*Field, error) {
	if width < 2 || height < 2 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("metaballs: %dx%d grid: %w", width, height, ErrGridDimensions)
	}
	if !(spacing > 0) || math.IsInf(spacing, 1) {
		return nil, fmt.Errorf("metaballs: spacing %g: %w", spacing, ErrGridSpacing)
	}
	halfW, halfH := width/2, height/2
	positions := make([]r3.Vec, 0, width*height)
	for y := halfH - 1; y >= -halfH; y-- {
		for x := -halfW; x < halfW; x++ {
			positions = append(positions, r3.Scale(spacing, r3.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5}))
		}
	}
	return &Field{
		width:     width,
		height:    height,
		spacing:   spacing,
		positions: positions,
		values:    make([]float64, width*height),
	}, nil
}

func (f *Field) Width() int       { return f.width }
func (f *Field) Height() int      { return f.height }
func (f *Field) Spacing() float64 { return f.spacing }

// Len returns the number of grid samples, width*height.
func (f *Field) Len() int { return len(f.values) }

// Index returns the sample index of grid column col and row row.
func (f *Field) Index(col, row int) int {
	if col < 0 || col >= f.width || row < 0 || row >= f.height {
		panic("grid coordinate out of range")
	}
	return col + row*f.width
}

// Position returns the position of sample k.
func (f *Field) Position(k int) r3.Vec { return f.positions[k] }

// Value returns the value of sample k as of the last Update.
func (f *Field) Value(k int) float64 { return f.values[k] }

// Values returns the sample values. The slice is owned by the field and is
// overwritten by the next Update.
func (f *Field) Values() []float64 { return f.values }

// HalfExtent returns half the width and height covered by the grid.
func (f *Field) HalfExtent() r2.Vec {
	return r2.Vec{
		X: float64(f.width) * f.spacing / 2,
		Y: float64(f.height) * f.spacing / 2,
	}
}

// Update samples fn at every grid position.
func (f *Field) Update(fn FieldFunc) {
	f.update(fn, 0, len(f.values))
}

// UpdateParallel is like Update but samples contiguous chunks of the grid
// on up to workers goroutines. workers <= 0 means GOMAXPROCS. fn must be
// safe for concurrent use. The result is identical to Update.
func (f *Field) UpdateParallel(fn FieldFunc, workers int) {
	parallelChunks(len(f.values), workers, func(start, end int) {
		f.update(fn, start, end)
	})
}

func (f *Field) update(fn FieldFunc, start, end int) {
	for i := start; i < end; i++ {
		pos := f.positions[i]
		f.values[i] = fn(pos.X, pos.Y)
	}
}
