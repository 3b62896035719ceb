package render

import (
	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/metaballs"
)

// Mesher extracts the iso-contour mesh of a classified field.
type Mesher interface {
	Build(f *metaballs.Field, l *metaballs.Layer) (Mesh, Stats)
}

// TriangleReader streams single precision triangles. ReadTriangles returns
// io.EOF once there are no triangles left.
type TriangleReader interface {
	ReadTriangles(t []ms3.Triangle) (int, error)
}

// Build meshes layer l of field f with the default MarchingSquares mesher.
func Build(f *metaballs.Field, l *metaballs.Layer) Mesh {
	m, _ := MarchingSquares{}.Build(f, l)
	return m
}
