package components

import (
	"testing"

	"github.com/prism-engine/prism/engine/math"
)

const epsilon = 1e-3

func approxEqual(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}

// Projecting a view-space point and running it back through the
// inverse projection must recover the original point for every
// supported field of view and aspect ratio.
func TestProjectionRoundTrip(t *testing.T) {
	fovs := []float32{30, 90, 120}
	aspects := []float32{0.5, 1.0, 1.77}
	points := []math.Vec4{
		{X: 0.0, Y: 0.0, Z: -1.0, W: 1},
		{X: 0.3, Y: -0.2, Z: -5.0, W: 1},
		{X: -1.5, Y: 2.0, Z: -50.0, W: 1},
	}

	for _, fov := range fovs {
		for _, aspect := range aspects {
			c := NewCamera()
			c.SetProjection(math.DegToRad(fov), aspect, 0.1, 1000.0)
			proj := c.GetProjection()
			inv := proj.Inverse()

			for _, p := range points {
				clip := proj.MulVec4(p)
				if clip.W <= 0 {
					t.Fatalf("fov=%v aspect=%v: point %+v projected to w=%v, want positive w for a point in front of the camera", fov, aspect, p, clip.W)
				}
				back := inv.MulVec4(clip)
				if back.W == 0 {
					t.Fatalf("fov=%v aspect=%v: degenerate inverse for %+v", fov, aspect, p)
				}
				bx, by, bz := back.X/back.W, back.Y/back.W, back.Z/back.W
				if !approxEqual(bx, p.X) || !approxEqual(by, p.Y) || !approxEqual(bz, p.Z) {
					t.Fatalf("fov=%v aspect=%v: round trip of %+v gave (%v, %v, %v)", fov, aspect, p, bx, by, bz)
				}
			}
		}
	}
}

func TestSetAspectKeepsFieldOfView(t *testing.T) {
	c := NewCamera()
	c.SetProjection(math.DegToRad(90), 1.0, 0.1, 100.0)
	before := c.GetProjection()

	c.SetAspect(1.77)
	after := c.GetProjection()

	// The Y scale comes from the field of view alone; only the X scale
	// tracks the aspect ratio.
	if !approxEqual(before.Data[5], after.Data[5]) {
		t.Fatalf("Y scale changed with aspect: %v -> %v", before.Data[5], after.Data[5])
	}
	if approxEqual(before.Data[0], after.Data[0]) {
		t.Fatalf("X scale did not change with aspect: %v", after.Data[0])
	}
}

// The view matrix updates inside every mutation; readers never see a
// stale view.
func TestViewRecomputesOnMutation(t *testing.T) {
	c := NewCamera()
	identityView := c.GetView()

	c.SetPosition(math.NewVec3(0, 0, 10))
	afterMove := c.GetView()
	if afterMove == identityView {
		t.Fatal("view unchanged after SetPosition")
	}

	c.Yaw(math.DegToRad(45))
	afterYaw := c.GetView()
	if afterYaw == afterMove {
		t.Fatal("view unchanged after Yaw")
	}

	c.Pitch(math.DegToRad(-10))
	if c.GetView() == afterYaw {
		t.Fatal("view unchanged after Pitch")
	}
}

func TestViewInvertsCameraPosition(t *testing.T) {
	c := NewCamera()
	pos := math.NewVec3(3, -2, 7)
	c.SetPosition(pos)

	// The camera's own position must land at the view-space origin.
	v := c.GetView().MulVec4(math.NewVec4(pos.X, pos.Y, pos.Z, 1))
	if !approxEqual(v.X, 0) || !approxEqual(v.Y, 0) || !approxEqual(v.Z, 0) {
		t.Fatalf("camera position maps to (%v, %v, %v) in view space, want origin", v.X, v.Y, v.Z)
	}
}

func TestYawRotatesForwardVector(t *testing.T) {
	c := NewCamera()
	before := c.Forward()

	c.Yaw(math.DegToRad(90))
	after := c.Forward()

	if approxEqual(before.X, after.X) && approxEqual(before.Z, after.Z) {
		t.Fatalf("forward unchanged by 90 degree yaw: %+v", after)
	}
	// Yaw must not tilt the camera.
	if !approxEqual(after.Y, before.Y) {
		t.Fatalf("yaw changed pitch: forward.Y %v -> %v", before.Y, after.Y)
	}
}
