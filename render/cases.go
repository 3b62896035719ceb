package render

// CellKind groups the 16 marching squares codes by topology. Codes of the
// same kind differ only by a rotation of the cell corners.
type CellKind uint8

const (
	KindEmpty CellKind = iota
	KindCorner
	KindNoCorner
	KindSplit
	KindDiagonal
	KindFull
)

func (k CellKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindCorner:
		return "corner"
	case KindNoCorner:
		return "nocorner"
	case KindSplit:
		return "split"
	case KindDiagonal:
		return "diagonal"
	case KindFull:
		return "full"
	}
	return "unknown"
}

// cellCase is a kind and the number of quarter turns applied to the corner
// order (a,b,c,d) before its template is emitted.
type cellCase struct {
	kind CellKind
	rot  uint8
}

// caseTable is indexed by the code a<<3|b<<2|c<<1|d.
var caseTable = [16]cellCase{
	0:  {KindEmpty, 0},
	4:  {KindCorner, 0},
	2:  {KindCorner, 1},
	1:  {KindCorner, 2},
	8:  {KindCorner, 3},
	7:  {KindNoCorner, 0},
	11: {KindNoCorner, 1},
	13: {KindNoCorner, 2},
	14: {KindNoCorner, 3},
	3:  {KindSplit, 0},
	9:  {KindSplit, 1},
	12: {KindSplit, 2},
	6:  {KindSplit, 3},
	5:  {KindDiagonal, 0},
	10: {KindDiagonal, 1},
	15: {KindFull, 0},
}

// Local vertex ids of a rotated cell. P0..P3 are the rotated corners, the
// E ids are edge crossings between the named corners.
const (
	vP0 = iota
	vP1
	vP2
	vP3
	vE01
	vE12
	vE23
	vE03
	numLocal
)

// edgeEnds holds the (near, far) corner ids of each crossing, indexed by
// crossing id minus vE01.
var edgeEnds = [4][2]uint8{
	{vP0, vP1},
	{vP1, vP2},
	{vP2, vP3},
	{vP0, vP3},
}

// templates lists the triangles emitted for each kind in local vertex ids.
// Full cells are handled by the rectangle merge instead.
var templates = [...][][3]uint8{
	KindEmpty:    nil,
	KindCorner:   {{vE12, vP1, vE01}},
	KindNoCorner: {{vE03, vP3, vP2}, {vE01, vE03, vP2}, {vP1, vE01, vP2}},
	KindSplit:    {{vE03, vP3, vP2}, {vE12, vE03, vP2}},
	// Saddles always connect the same way regardless of the value at the
	// cell center.
	KindDiagonal: {{vE03, vP3, vE23}, {vE01, vE12, vP1}},
	KindFull:     nil,
}
