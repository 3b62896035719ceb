package render

import (
	"github.com/soypat/metaballs/internal/d3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var normalZ = r3.Vec{Z: 1}

// weldTable deduplicates vertices of a single build by their exact bit
// pattern. Positions that differ in any bit, including the sign of zero or
// a NaN payload, are distinct vertices.
type weldTable struct {
	index     map[d3.Key]uint32
	hits      int
	nonFinite int
}

func newWeldTable(sizeHint int) weldTable {
	return weldTable{index: make(map[d3.Key]uint32, sizeHint)}
}

// insert returns the index of v in m, appending it with a +Z normal and a
// zero UV if it has not been seen in this build.
func (wt *weldTable) insert(m *Mesh, v r3.Vec) uint32 {
	key := d3.KeyOf(v)
	if idx, ok := wt.index[key]; ok {
		wt.hits++
		return idx
	}
	if uint64(len(m.Positions)) >= maxVertices {
		panic("mesh vertex count overflows uint32 indices")
	}
	idx := uint32(len(m.Positions))
	m.Positions = append(m.Positions, v)
	m.Normals = append(m.Normals, normalZ)
	m.UVs = append(m.UVs, r2.Vec{})
	wt.index[key] = idx
	if !d3.IsFinite(v) {
		wt.nonFinite++
	}
	return idx
}

const maxVertices = 1<<32 - 1
