package components

import (
	"github.com/prism-engine/prism/engine/math"
)

/**
 * @brief A free-flight camera whose orientation is a quaternion. Every
 * mutation recomputes the view matrix immediately so readers never see
 * a stale view.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated.
	 */
	Position math.Vec3
	/**
	 * @brief The orientation of this camera.
	 * NOTE: Do not set this directly, use SetRotation()/Rotate() instead
	 * so the view matrix is recalculated.
	 */
	Rotation math.Quaternion

	ViewMatrix       math.Mat4
	ProjectionMatrix math.Mat4

	fovRadians float32
	aspect     float32
	nearClip   float32
	farClip    float32
}

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Position = math.NewVec3Zero()
	c.Rotation = math.NewQuatIdentity()
	c.ProjectionMatrix = math.NewMat4Identity()
	c.recompute()
}

func (c *Camera) recompute() {
	target := c.Position.Add(c.Forward())
	c.ViewMatrix = math.NewMat4LookAt(c.Position, target, c.Up())
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.recompute()
}

func (c *Camera) GetRotation() math.Quaternion {
	return c.Rotation
}

func (c *Camera) SetRotation(rotation math.Quaternion) {
	c.Rotation = rotation.Normalized()
	c.recompute()
}

// Rotate applies an incremental rotation on top of the current
// orientation and renormalizes to keep drift out of the basis.
func (c *Camera) Rotate(delta math.Quaternion) {
	c.Rotation = delta.Mul(c.Rotation).Normalized()
	c.recompute()
}

// Yaw rotates around the camera's up axis, Pitch around its left axis.
func (c *Camera) Yaw(amountRadians float32) {
	c.Rotate(math.NewQuatFromAxisAngle(c.Up(), amountRadians))
}

func (c *Camera) Pitch(amountRadians float32) {
	c.Rotate(math.NewQuatFromAxisAngle(c.Left(), amountRadians))
}

func (c *Camera) GetView() math.Mat4 {
	return c.ViewMatrix
}

func (c *Camera) GetProjection() math.Mat4 {
	return c.ProjectionMatrix
}

// SetProjection rebuilds the perspective projection. Called at startup
// and whenever the framebuffer aspect ratio changes.
func (c *Camera) SetProjection(fovRadians, aspect, nearClip, farClip float32) {
	c.fovRadians = fovRadians
	c.aspect = aspect
	c.nearClip = nearClip
	c.farClip = farClip
	c.ProjectionMatrix = math.NewMat4Perspective(fovRadians, aspect, nearClip, farClip)
}

// SetAspect rebuilds the projection with a new aspect ratio, keeping
// the other parameters.
func (c *Camera) SetAspect(aspect float32) {
	c.SetProjection(c.fovRadians, aspect, c.nearClip, c.farClip)
}

func (c *Camera) Forward() math.Vec3 {
	return c.Rotation.RotateVec3(math.NewVec3Forward())
}

func (c *Camera) Backward() math.Vec3 {
	return c.Forward().MulScalar(-1)
}

func (c *Camera) Left() math.Vec3 {
	return c.Rotation.RotateVec3(math.NewVec3Left())
}

func (c *Camera) Right() math.Vec3 {
	return c.Left().MulScalar(-1)
}

func (c *Camera) Up() math.Vec3 {
	return c.Rotation.RotateVec3(math.NewVec3Up())
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.Position.Add(c.Forward().MulScalar(amount)))
}

func (c *Camera) MoveBackward(amount float32) {
	c.SetPosition(c.Position.Add(c.Backward().MulScalar(amount)))
}

func (c *Camera) MoveLeft(amount float32) {
	c.SetPosition(c.Position.Add(c.Left().MulScalar(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.Position.Add(c.Right().MulScalar(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.Position.Add(math.NewVec3Up().MulScalar(amount)))
}

func (c *Camera) MoveDown(amount float32) {
	c.SetPosition(c.Position.Add(math.NewVec3Up().MulScalar(-amount)))
}
