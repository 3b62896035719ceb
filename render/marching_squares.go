package render

import (
	"github.com/soypat/metaballs"
	"github.com/soypat/metaballs/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// MarchingSquares triangulates the inside region of a Layer. Cells with all
// four corners inside are merged greedily into rectangles before being
// emitted, the rest are emitted from a per-case template. It holds no state
// between builds.
type MarchingSquares struct{}

var _ Mesher = MarchingSquares{}

// Rect is a run of full cells merged into one rectangle. I, J is the top
// left cell and W, H the size in cells.
type Rect struct {
	I, J, W, H int
}

// Stats describes a single build.
type Stats struct {
	// Cases counts dispatched cells by code. Cells consumed by a merge are
	// not dispatched and only counted through MergedCells.
	Cases       [16]int
	Merged      []Rect
	MergedCells int
	// WeldHits counts emitted vertices that reused an existing index.
	WeldHits  int
	NonFinite int
}

// CountKind returns the number of dispatched cells of the given kind.
func (s Stats) CountKind(kind CellKind) (n int) {
	for code, c := range caseTable {
		if c.kind == kind {
			n += s.Cases[code]
		}
	}
	return n
}

// Build scans every cell of f in row-major order and emits the triangles
// of layer l. Consecutive builds over the same field and layer state return
// identical meshes.
func (MarchingSquares) Build(f *metaballs.Field, l *metaballs.Layer) (Mesh, Stats) {
	if l.Len() != f.Len() {
		panic("layer was classified against a field of different size")
	}
	w, h := f.Width(), f.Height()
	b := builder{
		f:        f,
		l:        l,
		consumed: make([]bool, f.Len()),
		weld:     newWeldTable(l.Count()),
	}
	for j := 0; j < h-1; j++ {
		for i := 0; i < w-1; i++ {
			if b.consumed[i+j*w] {
				continue
			}
			code := l.Code(f, i, j)
			b.stats.Cases[code]++
			b.march(code, i, j)
		}
	}
	b.stats.WeldHits = b.weld.hits
	b.stats.NonFinite = b.weld.nonFinite
	return b.mesh, b.stats
}

type builder struct {
	f        *metaballs.Field
	l        *metaballs.Layer
	consumed []bool
	weld     weldTable
	mesh     Mesh
	stats    Stats
}

func (b *builder) march(code uint8, i, j int) {
	c := caseTable[code]
	switch c.kind {
	case KindEmpty:
		return
	case KindFull:
		b.merge(i, j)
		return
	}
	w := b.f.Width()
	a := i + j*w
	corners := [4]int{a, a + 1, a + w + 1, a + w}
	var idx [4]int
	for k := range idx {
		idx[k] = corners[(k+int(c.rot))%4]
	}

	var (
		pts  [numLocal]r3.Vec
		have uint8
	)
	local := func(id uint8) r3.Vec {
		if have&(1<<id) == 0 {
			if id < vE01 {
				pts[id] = b.f.Position(idx[id])
			} else {
				ends := edgeEnds[id-vE01]
				pts[id] = b.crossing(idx[ends[0]], idx[ends[1]])
			}
			have |= 1 << id
		}
		return pts[id]
	}
	for _, tri := range templates[c.kind] {
		b.emit(local(tri[0]), local(tri[1]), local(tri[2]))
	}
}

// crossing interpolates between samples near and far with weight
// v[far]/(v[near]+v[far]). A zero denominator yields non-finite positions.
func (b *builder) crossing(near, far int) r3.Vec {
	vn, vf := b.f.Value(near), b.f.Value(far)
	return d3.Lerp(b.f.Position(near), b.f.Position(far), vf/(vn+vf))
}

// merge grows a rectangle of full cells from (i, j), first to the right and
// then downward one full-width row at a time, and emits it as two
// triangles.
func (b *builder) merge(i, j int) {
	f, l := b.f, b.l
	w, h := f.Width(), f.Height()
	rw := 1
	for ni := i + 1; ni < w-2 && !b.consumed[ni+j*w] && l.Code(f, ni, j) == 15; ni++ {
		rw++
	}
	rh := 1
	for nj := j + 1; nj < h-2 && b.fullRun(i, nj, rw); nj++ {
		rh++
	}
	for y := j; y < j+rh; y++ {
		for x := i; x < i+rw; x++ {
			b.consumed[x+y*w] = true
		}
	}
	b.stats.Merged = append(b.stats.Merged, Rect{I: i, J: j, W: rw, H: rh})
	b.stats.MergedCells += rw * rh

	p1 := f.Position(f.Index(i, j))
	p2 := f.Position(f.Index(i+rw, j))
	p3 := f.Position(f.Index(i+rw, j+rh))
	p4 := f.Position(f.Index(i, j+rh))
	b.emit(p1, p4, p3)
	b.emit(p2, p1, p3)
}

func (b *builder) fullRun(i, j, n int) bool {
	w := b.f.Width()
	for x := i; x < i+n; x++ {
		if b.consumed[x+j*w] || b.l.Code(b.f, x, j) != 15 {
			return false
		}
	}
	return true
}

func (b *builder) emit(v0, v1, v2 r3.Vec) {
	m := &b.mesh
	m.Indices = append(m.Indices,
		b.weld.insert(m, v0),
		b.weld.insert(m, v1),
		b.weld.insert(m, v2),
	)
}
