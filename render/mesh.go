package render

import (
	"errors"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/metaballs/internal/d3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmptyMesh is returned when an operation needs at least one (finite)
// triangle.
var ErrEmptyMesh = errors.New("mesh has no finite triangles")

// Mesh is an indexed triangle list lying in the z=0 plane. Positions,
// Normals and UVs always have the same length and every consecutive
// triple of Indices is a triangle.
type Mesh struct {
	Positions []r3.Vec
	Normals   []r3.Vec
	UVs       []r2.Vec
	Indices   []uint32
}

func (m Mesh) VertexCount() int   { return len(m.Positions) }
func (m Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Triangle returns the vertex positions of the i'th triangle.
func (m Mesh) Triangle(i int) [3]r3.Vec {
	idx := m.Indices[3*i : 3*i+3]
	return [3]r3.Vec{m.Positions[idx[0]], m.Positions[idx[1]], m.Positions[idx[2]]}
}

// Validate checks the structural invariants of m.
func (m Mesh) Validate() error {
	n := len(m.Positions)
	if len(m.Normals) != n || len(m.UVs) != n {
		return fmt.Errorf("attribute length mismatch: %d positions, %d normals, %d uvs", n, len(m.Normals), len(m.UVs))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("index count %d not a multiple of 3", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("index %d at %d out of range of %d vertices", idx, i, n)
		}
	}
	return nil
}

// Bounds returns the bounding box of the finite vertices of m. ok is false
// if m has no finite vertex.
func (m Mesh) Bounds() (box r3.Box, ok bool) {
	for _, v := range m.Positions {
		if !d3.IsFinite(v) {
			continue
		}
		if !ok {
			box = r3.Box{Min: v, Max: v}
			ok = true
			continue
		}
		box.Min = d3.MinElem(box.Min, v)
		box.Max = d3.MaxElem(box.Max, v)
	}
	return box, ok
}

// Triangles32 returns every triangle of m in single precision, non-finite
// ones included.
func (m Mesh) Triangles32() []ms3.Triangle {
	out := make([]ms3.Triangle, m.TriangleCount())
	for i := range out {
		out[i] = triangle32(m.Triangle(i))
	}
	return out
}

// Reader returns a TriangleReader over the triangles of m whose single
// precision vertices are all finite.
func (m Mesh) Reader() TriangleReader {
	return &meshReader{m: m}
}

type meshReader struct {
	m    Mesh
	next int
}

func (mr *meshReader) ReadTriangles(dst []ms3.Triangle) (n int, err error) {
	if len(dst) == 0 {
		return 0, io.ErrShortBuffer
	}
	nt := mr.m.TriangleCount()
	for n < len(dst) && mr.next < nt {
		t := triangle32(mr.m.Triangle(mr.next))
		mr.next++
		if !finiteTriangle32(t) {
			continue
		}
		dst[n] = t
		n++
	}
	if mr.next >= nt {
		return n, io.EOF
	}
	return n, nil
}

// ReadAll drains r into a slice.
func ReadAll(r TriangleReader) ([]ms3.Triangle, error) {
	var (
		buf    [256]ms3.Triangle
		output []ms3.Triangle
	)
	for {
		n, err := r.ReadTriangles(buf[:])
		output = append(output, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return output, nil
		}
		if err != nil {
			return output, err
		}
	}
}

func vec32(v r3.Vec) ms3.Vec {
	return ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

func triangle32(t [3]r3.Vec) ms3.Triangle {
	return ms3.Triangle{vec32(t[0]), vec32(t[1]), vec32(t[2])}
}

func finite32(v ms3.Vec) bool {
	return !(math32.IsNaN(v.X) || math32.IsInf(v.X, 0) ||
		math32.IsNaN(v.Y) || math32.IsInf(v.Y, 0) ||
		math32.IsNaN(v.Z) || math32.IsInf(v.Z, 0))
}

func finiteTriangle32(t ms3.Triangle) bool {
	return finite32(t[0]) && finite32(t[1]) && finite32(t[2])
}
