package metaballs

import (
	"fmt"
	"strings"
)

// Bounds selects which cells along the far edges of the grid a Layer reports
// as empty.
type Bounds uint8

const (
	// BoundsLegacy skips cells with i >= width-2 or j > height-2. The column
	// bound is one tighter than the row bound so the last full column of
	// cells never produces geometry.
	BoundsLegacy Bounds = iota
	// BoundsSymmetric skips cells with i >= width-2 or j >= height-2.
	BoundsSymmetric
)

func (b Bounds) String() string {
	switch b {
	case BoundsLegacy:
		return "legacy"
	case BoundsSymmetric:
		return "symmetric"
	}
	return fmt.Sprintf("Bounds(%d)", uint8(b))
}

// ParseBounds parses the name returned by Bounds.String.
func ParseBounds(s string) (Bounds, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return BoundsLegacy, nil
	case "symmetric":
		return BoundsSymmetric, nil
	}
	return 0, fmt.Errorf("unknown bounds policy %q", s)
}

// Layer classifies field samples against an iso threshold. A sample is
// inside when its value is strictly greater than Threshold.
type Layer struct {
	Threshold float64
	Bounds    Bounds
	inside    []bool
}

// NewLayer returns a Layer sized for f and classified against its current
// values.
func NewLayer(f *Field, threshold float64) *Layer {
	l := &Layer{Threshold: threshold}
	l.Reclassify(f)
	return l
}

// Reclassify recomputes the inside mask from the current values of f. NaN
// values are outside.
func (l *Layer) Reclassify(f *Field) {
	l.resize(f.Len())
	l.classify(f.values, 0, len(f.values))
}

// ReclassifyParallel is like Reclassify but splits the grid into contiguous
// chunks classified on up to workers goroutines. workers <= 0 means
// GOMAXPROCS.
func (l *Layer) ReclassifyParallel(f *Field, workers int) {
	l.resize(f.Len())
	parallelChunks(len(f.values), workers, func(start, end int) {
		l.classify(f.values, start, end)
	})
}

func (l *Layer) resize(n int) {
	if len(l.inside) != n {
		l.inside = make([]bool, n)
	}
}

func (l *Layer) classify(values []float64, start, end int) {
	inside := l.inside[start:end]
	for i, v := range values[start:end] {
		inside[i] = v > l.Threshold
	}
}

// Inside reports whether sample k was above the threshold at the last
// classification.
func (l *Layer) Inside(k int) bool { return l.inside[k] }

// Len returns the number of classified samples.
func (l *Layer) Len() int { return len(l.inside) }

// Count returns the number of samples inside the layer.
func (l *Layer) Count() (n int) {
	for _, in := range l.inside {
		if in {
			n++
		}
	}
	return n
}

// Code returns the 4-bit marching squares code of cell (i, j), the cell
// whose top-left sample is column i, row j. Corner bits are
//
//	a=(i,j)<<3 | b=(i+1,j)<<2 | c=(i+1,j+1)<<1 | d=(i,j+1)
//
// Code is 0 for cells excluded by the layer's Bounds.
func (l *Layer) Code(f *Field, i, j int) uint8 {
	w, h := f.width, f.height
	if i >= w-2 {
		return 0
	}
	switch l.Bounds {
	case BoundsSymmetric:
		if j >= h-2 {
			return 0
		}
	default:
		if j > h-2 {
			return 0
		}
	}
	a := i + j*w
	d := a + w
	var code uint8
	if l.inside[a] {
		code |= 1 << 3
	}
	if l.inside[a+1] {
		code |= 1 << 2
	}
	if l.inside[d+1] {
		code |= 1 << 1
	}
	if l.inside[d] {
		code |= 1
	}
	return code
}
