// Package telemetry collects per-tick mesh statistics and timings and
// writes them as CSV.
package telemetry

import (
	"log/slog"

	"github.com/soypat/metaballs/render"
)

// LayerStats describes the mesh built for one layer in one tick.
type LayerStats struct {
	Tick      uint64  `csv:"tick"`
	Layer     string  `csv:"layer"`
	Threshold float64 `csv:"threshold"`
	// Inside is the number of grid samples above the threshold.
	Inside      int `csv:"inside"`
	Vertices    int `csv:"vertices"`
	Triangles   int `csv:"triangles"`
	Rects       int `csv:"rects"`
	MergedCells int `csv:"merged_cells"`
	WeldHits    int `csv:"weld_hits"`
	NonFinite   int `csv:"non_finite"`

	// Dispatched cells by topology.
	Corner   int `csv:"corner"`
	NoCorner int `csv:"nocorner"`
	Split    int `csv:"split"`
	Diagonal int `csv:"diagonal"`
}

// NewLayerStats summarizes a build of mesh m.
func NewLayerStats(tick uint64, name string, threshold float64, inside int, m render.Mesh, st render.Stats) LayerStats {
	return LayerStats{
		Tick:        tick,
		Layer:       name,
		Threshold:   threshold,
		Inside:      inside,
		Vertices:    m.VertexCount(),
		Triangles:   m.TriangleCount(),
		Rects:       len(st.Merged),
		MergedCells: st.MergedCells,
		WeldHits:    st.WeldHits,
		NonFinite:   st.NonFinite,
		Corner:      st.CountKind(render.KindCorner),
		NoCorner:    st.CountKind(render.KindNoCorner),
		Split:       st.CountKind(render.KindSplit),
		Diagonal:    st.CountKind(render.KindDiagonal),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s LayerStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("threshold", s.Threshold),
		slog.Int("inside", s.Inside),
		slog.Int("vertices", s.Vertices),
		slog.Int("triangles", s.Triangles),
		slog.Int("rects", s.Rects),
		slog.Int("weld_hits", s.WeldHits),
		slog.Int("non_finite", s.NonFinite),
	)
}

// TickStats holds the statistics of one pipeline tick.
type TickStats struct {
	Tick       uint64
	Balls      int
	GridPoints int
	Layers     []LayerStats
	Perf       PerfSample
}

// Triangles returns the number of triangles over every layer.
func (s TickStats) Triangles() (n int) {
	for _, l := range s.Layers {
		n += l.Triangles
	}
	return n
}

// NonFinite returns the number of non-finite vertices over every layer.
func (s TickStats) NonFinite() (n int) {
	for _, l := range s.Layers {
		n += l.NonFinite
	}
	return n
}

// LogValue implements slog.LogValuer for structured logging.
func (s TickStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("tick", s.Tick),
		slog.Int("balls", s.Balls),
		slog.Int("grid_points", s.GridPoints),
		slog.Int("triangles", s.Triangles()),
		slog.Int64("tick_us", s.Perf.TickDuration.Microseconds()),
	}
	for _, l := range s.Layers {
		attrs = append(attrs, slog.Any(l.Layer, l))
	}
	return slog.GroupValue(attrs...)
}
