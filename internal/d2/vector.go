package d2

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinElem return a vector with the minimum components of two vectors.
func MinElem(a, b r2.Vec) r2.Vec {
	return r2.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)}
}

// MaxElem return a vector with the maximum components of two vectors.
func MaxElem(a, b r2.Vec) r2.Vec {
	return r2.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)}
}

// Extend returns the smallest box containing a and b.
func Extend(a, b r2.Box) r2.Box {
	return r2.Box{Min: MinElem(a.Min, b.Min), Max: MaxElem(a.Max, b.Max)}
}

// Flatten drops the Z extent of b.
func Flatten(b r3.Box) r2.Box {
	return r2.Box{
		Min: r2.Vec{X: b.Min.X, Y: b.Min.Y},
		Max: r2.Vec{X: b.Max.X, Y: b.Max.Y},
	}
}

// Centered returns the box spanning -half to half.
func Centered(half r2.Vec) r2.Box {
	return r2.Box{Min: r2.Scale(-1, half), Max: half}
}
