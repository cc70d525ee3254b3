// Package geom holds the small amount of 3D geometry the correlation engine needs.
package geom

import (
	"fmt"
	"math"
)

// Point3 is a point (or direction) in 3D space.
//
// Point3 is the only coordinate type the engine understands. Host-native
// vector representations are converted at the call site (see Vec3 and
// package raycast).
type Point3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// P is shorthand for Point3{x, y, z}.
func P(x, y, z float64) Point3 {
	return Point3{X: x, Y: y, Z: z}
}

// Sub returns p - q.
func (p Point3) Sub(q Point3) Point3 {
	return Point3{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Add returns p + q.
func (p Point3) Add(q Point3) Point3 {
	return Point3{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Scale returns p * s.
func (p Point3) Scale(s float64) Point3 {
	return Point3{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Dot returns the dot product of p and q.
func (p Point3) Dot(q Point3) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Len returns the Euclidean length of p treated as a vector.
func (p Point3) Len() float64 {
	return math.Sqrt(p.Dot(p))
}

// Normalize returns p scaled to unit length. The zero vector is returned unchanged.
func (p Point3) Normalize() Point3 {
	l := p.Len()
	if l == 0 {
		return p
	}
	return p.Scale(1 / l)
}

// String formats the point as "(x, y, z)".
func (p Point3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point3) float64 {
	return b.Sub(a).Len()
}

// SegmentError scores how consistent point p is with lying on the segment
// start→end whose length is total:
//
//	|distance(start, p) + distance(p, end) - total|
//
// A point exactly on the segment scores 0. total is passed in rather than
// recomputed so callers can precompute it once per segment.
func SegmentError(start, end, p Point3, total float64) float64 {
	return math.Abs(Distance(start, p) + Distance(p, end) - total)
}
