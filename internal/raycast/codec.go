// Package raycast adapts host-native vector types to the correlation engine.
//
// The engine only speaks geom.Point3. A Caster[V] converts a host's vector
// type V on the way in and converts hit points and normals back to V on the
// way out, so handlers receive coordinates in the same form the ray was cast
// with. Which representation is in play is decided once, by the Codec the
// Caster is built with; nothing downstream inspects it.
package raycast

import (
	"fmt"

	"github.com/roach88/raycorr/internal/geom"
)

// Codec converts between a host vector type and geom.Point3.
type Codec[V any] interface {
	Decode(v V) (geom.Point3, error)
	Encode(p geom.Point3) V
}

// PointCodec is the identity codec for hosts that already use geom.Point3.
type PointCodec struct{}

// Decode implements Codec.
func (PointCodec) Decode(p geom.Point3) (geom.Point3, error) { return p, nil }

// Encode implements Codec.
func (PointCodec) Encode(p geom.Point3) geom.Point3 { return p }

// Vec3Codec converts the packed float32 form.
type Vec3Codec struct{}

// Decode implements Codec.
func (Vec3Codec) Decode(v geom.Vec3) (geom.Point3, error) { return geom.FromVec3(v), nil }

// Encode implements Codec.
func (Vec3Codec) Encode(p geom.Point3) geom.Vec3 { return p.Vec3() }

// SliceCodec converts []float64{x, y, z}, as decoded from JSON or YAML.
type SliceCodec struct{}

// Decode implements Codec. Slices of any length other than three are rejected.
func (SliceCodec) Decode(s []float64) (geom.Point3, error) {
	p, ok := geom.FromSlice(s)
	if !ok {
		return geom.Point3{}, fmt.Errorf("want 3 coordinates, got %d", len(s))
	}
	return p, nil
}

// Encode implements Codec.
func (SliceCodec) Encode(p geom.Point3) []float64 { return p.Slice() }
