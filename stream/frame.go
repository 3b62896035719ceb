package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/metaballs/pipeline"
)

// Frame wire format, all little endian:
//
//	u64 tick
//	u32 layer count
//	per layer:
//	  f32 threshold
//	  u32 vertex count (nv)
//	  u32 index count (ni)
//	  nv * (f32 x, f32 y, f32 z)
//	  ni * u32 index
//
// Positions are sent in single precision. Non-finite values keep their bit
// pattern.
const (
	frameHeaderSize = 12
	layerHeaderSize = 12
)

var errShortFrame = errors.New("frame truncated")

// DecodedLayer is one layer of a decoded frame.
type DecodedLayer struct {
	Threshold float32
	Positions []ms3.Vec
	Indices   []uint32
}

// DecodedFrame is the result of DecodeFrame.
type DecodedFrame struct {
	Tick   uint64
	Layers []DecodedLayer
}

// EncodeFrame appends the wire encoding of f to dst.
func EncodeFrame(dst []byte, f pipeline.Frame) []byte {
	size := frameHeaderSize
	for _, l := range f.Layers {
		size += layerHeaderSize + 12*len(l.Mesh.Positions) + 4*len(l.Mesh.Indices)
	}
	dst = grow(dst, size)
	dst = binary.LittleEndian.AppendUint64(dst, f.Tick)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Layers)))
	for _, l := range f.Layers {
		m := l.Mesh
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(l.Threshold)))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(m.Positions)))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(m.Indices)))
		for _, v := range m.Positions {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.X)))
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Y)))
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Z)))
		}
		for _, idx := range m.Indices {
			dst = binary.LittleEndian.AppendUint32(dst, idx)
		}
	}
	return dst
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(b []byte) (DecodedFrame, error) {
	var f DecodedFrame
	if len(b) < frameHeaderSize {
		return f, errShortFrame
	}
	f.Tick = binary.LittleEndian.Uint64(b)
	nl := binary.LittleEndian.Uint32(b[8:])
	b = b[frameHeaderSize:]
	for i := uint32(0); i < nl; i++ {
		if len(b) < layerHeaderSize {
			return f, fmt.Errorf("layer %d header: %w", i, errShortFrame)
		}
		var l DecodedLayer
		l.Threshold = math.Float32frombits(binary.LittleEndian.Uint32(b))
		nv := uint64(binary.LittleEndian.Uint32(b[4:]))
		ni := uint64(binary.LittleEndian.Uint32(b[8:]))
		b = b[layerHeaderSize:]
		if uint64(len(b)) < 12*nv+4*ni {
			return f, fmt.Errorf("layer %d body: %w", i, errShortFrame)
		}
		l.Positions = make([]ms3.Vec, nv)
		for k := range l.Positions {
			l.Positions[k] = ms3.Vec{
				X: math.Float32frombits(binary.LittleEndian.Uint32(b)),
				Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
				Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
			}
			b = b[12:]
		}
		l.Indices = make([]uint32, ni)
		for k := range l.Indices {
			idx := binary.LittleEndian.Uint32(b)
			if uint64(idx) >= nv {
				return f, fmt.Errorf("layer %d index %d out of range of %d vertices", i, idx, nv)
			}
			l.Indices[k] = idx
			b = b[4:]
		}
		f.Layers = append(f.Layers, l)
	}
	if len(b) != 0 {
		return f, fmt.Errorf("%d trailing bytes after frame", len(b))
	}
	return f, nil
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) < n {
		nb := make([]byte, len(b), len(b)+n)
		copy(nb, b)
		return nb
	}
	return b
}
