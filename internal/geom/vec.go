package geom

// Vec3 is the packed single-precision vector form used by most game hosts
// and rendering APIs. It is a boundary representation only; convert it with
// FromVec3 before handing coordinates to the engine.
type Vec3 [3]float32

// FromVec3 widens a host vector into a Point3.
func FromVec3(v Vec3) Point3 {
	return Point3{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// Vec3 narrows p into the host vector form. Precision beyond float32 is lost.
func (p Point3) Vec3() Vec3 {
	return Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
}

// FromSlice converts a 3-element slice (as decoded from YAML or JSON) into a
// Point3. ok is false when the slice does not have exactly three elements.
func FromSlice(s []float64) (p Point3, ok bool) {
	if len(s) != 3 {
		return Point3{}, false
	}
	return Point3{X: s[0], Y: s[1], Z: s[2]}, true
}

// Slice returns p as a 3-element slice.
func (p Point3) Slice() []float64 {
	return []float64{p.X, p.Y, p.Z}
}
