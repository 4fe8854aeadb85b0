package math

import (
	"testing"
)

const epsilon = 1e-4

func closeTo(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}

func TestQuatAxisAngleRotatesVector(t *testing.T) {
	// 90 degrees around Y carries +X onto -Z.
	q := NewQuatFromAxisAngle(NewVec3(0, 1, 0), DegToRad(90))
	v := q.RotateVec3(NewVec3(1, 0, 0))
	if !closeTo(v.X, 0) || !closeTo(v.Y, 0) || !closeTo(v.Z, -1) {
		t.Fatalf("rotated +X to %+v, want -Z", v)
	}
}

func TestQuatNormalizedIsUnit(t *testing.T) {
	q := Quaternion{X: 1, Y: 2, Z: 3, W: 4}.Normalized()
	if !closeTo(q.Normal(), 1) {
		t.Fatalf("normalized quaternion has norm %v", q.Normal())
	}
}

func TestMat4MulIdentity(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	if got := m.Mul(NewMat4Identity()); got != m {
		t.Fatalf("m * I = %+v, want m", got)
	}
	if got := NewMat4Identity().Mul(m); got != m {
		t.Fatalf("I * m = %+v, want m", got)
	}
}

func TestMat4TranslationMovesPoint(t *testing.T) {
	m := NewMat4Translation(NewVec3(5, -1, 2))
	p := m.MulVec4(NewVec4(1, 1, 1, 1))
	if !closeTo(p.X, 6) || !closeTo(p.Y, 0) || !closeTo(p.Z, 3) {
		t.Fatalf("translated point = %+v", p)
	}
	// Direction vectors (w=0) ignore translation.
	d := m.MulVec4(NewVec4(1, 0, 0, 0))
	if !closeTo(d.X, 1) || !closeTo(d.Y, 0) || !closeTo(d.Z, 0) {
		t.Fatalf("translated direction = %+v", d)
	}
}

func TestMat4EulerYMatchesQuaternion(t *testing.T) {
	angle := DegToRad(37)
	m := NewMat4EulerY(angle)
	q := NewQuatFromAxisAngle(NewVec3(0, 1, 0), angle)

	in := NewVec3(0.5, 1.25, -2.0)
	fromMat := m.MulVec4(NewVec4(in.X, in.Y, in.Z, 0))
	fromQuat := q.RotateVec3(in)
	if !closeTo(fromMat.X, fromQuat.X) || !closeTo(fromMat.Y, fromQuat.Y) || !closeTo(fromMat.Z, fromQuat.Z) {
		t.Fatalf("matrix %+v vs quaternion %+v", fromMat, fromQuat)
	}
}

func TestMat4InverseRoundTrip(t *testing.T) {
	m := NewMat4Translation(NewVec3(3, 4, 5)).Mul(NewMat4EulerY(DegToRad(30)))
	inv := m.Inverse()

	p := NewVec4(1, 2, 3, 1)
	back := inv.MulVec4(m.MulVec4(p))
	if !closeTo(back.X, p.X) || !closeTo(back.Y, p.Y) || !closeTo(back.Z, p.Z) || !closeTo(back.W, p.W) {
		t.Fatalf("inverse round trip gave %+v", back)
	}
}

func TestLookAtMapsEyeToOrigin(t *testing.T) {
	eye := NewVec3(2, 3, 4)
	view := NewMat4LookAt(eye, NewVec3(0, 0, 0), NewVec3(0, 1, 0))
	p := view.MulVec4(NewVec4(eye.X, eye.Y, eye.Z, 1))
	if !closeTo(p.X, 0) || !closeTo(p.Y, 0) || !closeTo(p.Z, 0) {
		t.Fatalf("eye maps to %+v, want origin", p)
	}
}

func TestRangeConversions(t *testing.T) {
	if !closeTo(RadToDeg(DegToRad(123)), 123) {
		t.Fatalf("deg/rad round trip broke: %v", RadToDeg(DegToRad(123)))
	}
}
