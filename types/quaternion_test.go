package types

import (
	"math"
	"testing"
)

func TestQuatRotate(t *testing.T) {
	// Rotating the X axis 90 degrees around Z yields the Y axis.
	q := QuatFromAxisAngle(Vec3{0, 0, 1}, float32(math.Pi/2))

	expOut := Vec3{0, 1, 0}
	out := q.Rotate(Vec3{1, 0, 0})
	if !ApproxEqual(out, expOut, 1e-6) {
		t.Fatalf("expected rotated vector to be %v; got %v", expOut, out)
	}
}

func TestQuatMat4MatchesRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/3)).Normalize()
	m := q.Mat4()

	in := Vec3{0.3, -1.2, 0.5}
	expOut := q.Rotate(in)
	out := m.TransformPoint(in)
	if !ApproxEqual(out, expOut, 1e-5) {
		t.Fatalf("expected matrix transform to match quaternion rotation %v; got %v", expOut, out)
	}
}

func TestQuatMulComposition(t *testing.T) {
	qx := QuatFromAxisAngle(Vec3{1, 0, 0}, float32(math.Pi/2))
	qz := QuatFromAxisAngle(Vec3{0, 0, 1}, float32(math.Pi/2))

	// qz.Mul(qx) applies the X rotation first.
	expOut := qz.Rotate(qx.Rotate(Vec3{0, 1, 0}))
	out := qz.Mul(qx).Rotate(Vec3{0, 1, 0})
	if !ApproxEqual(out, expOut, 1e-6) {
		t.Fatalf("expected composed rotation to be %v; got %v", expOut, out)
	}
}
