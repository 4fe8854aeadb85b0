package math

import (
	m "math"
)

const (
	// An approximate representation of PI.
	Pi float32 = 3.14159265358979323846
	// A multiplier used to convert degrees to radians.
	deg2RadMultiplier float32 = Pi / 180.0
	// A multiplier used to convert radians to degrees.
	rad2DegMultiplier float32 = 180.0 / Pi
	// Smallest positive number where 1.0 + FloatEpsilon != 1.0
	FloatEpsilon float32 = 1.192092896e-07
)

// Thin float32 wrappers to avoid sprinkling conversions everywhere.
func Sin(x float32) float32  { return float32(m.Sin(float64(x))) }
func Cos(x float32) float32  { return float32(m.Cos(float64(x))) }
func Tan(x float32) float32  { return float32(m.Tan(float64(x))) }
func Sqrt(x float32) float32 { return float32(m.Sqrt(float64(x))) }
func Abs(x float32) float32  { return float32(m.Abs(float64(x))) }

func DegToRad(degrees float32) float32 {
	return degrees * deg2RadMultiplier
}

func RadToDeg(radians float32) float32 {
	return radians * rad2DegMultiplier
}

// ------------------------------------------
// Vector 3
// ------------------------------------------

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec3Zero() Vec3 {
	return Vec3{}
}

// NewVec3Forward returns the canonical forward basis vector (0, 0, -1).
func NewVec3Forward() Vec3 {
	return Vec3{0.0, 0.0, -1.0}
}

// NewVec3Left returns the canonical left basis vector (-1, 0, 0).
func NewVec3Left() Vec3 {
	return Vec3{-1.0, 0.0, 0.0}
}

// NewVec3Up returns the canonical up basis vector (0, 1, 0).
func NewVec3Up() Vec3 {
	return Vec3{0.0, 1.0, 0.0}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

func (v Vec3) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

func (v Vec3) Length() float32 {
	return Sqrt(v.LengthSquared())
}

func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length < FloatEpsilon {
		return v
	}
	return Vec3{v.X / length, v.Y / length, v.Z / length}
}

// ------------------------------------------
// Vector 4
// ------------------------------------------

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func (v Vec4) Vec3() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

// ------------------------------------------
// Quaternion
// ------------------------------------------

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1.0}
}

// NewQuatFromAxisAngle creates a quaternion from the given axis and
// angle in radians.
func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	halfAngle := 0.5 * angle
	s := Sin(halfAngle)
	c := Cos(halfAngle)
	return Quaternion{s * axis.X, s * axis.Y, s * axis.Z, c}
}

func (q Quaternion) Normal() float32 {
	return Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalized() Quaternion {
	normal := q.Normal()
	return Quaternion{q.X / normal, q.Y / normal, q.Z / normal, q.W / normal}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

func (q Quaternion) Mul(other Quaternion) Quaternion {
	out := Quaternion{}
	out.X = q.X*other.W + q.Y*other.Z - q.Z*other.Y + q.W*other.X
	out.Y = -q.X*other.Z + q.Y*other.W + q.Z*other.X + q.W*other.Y
	out.Z = q.X*other.Y - q.Y*other.X + q.Z*other.W + q.W*other.Z
	out.W = -q.X*other.X - q.Y*other.Y - q.Z*other.Z + q.W*other.W
	return out
}

// RotateVec3 rotates v by q (q must be normalized).
func (q Quaternion) RotateVec3(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	s := q.W
	// v' = 2(u·v)u + (s² − u·u)v + 2s(u×v)
	a := u.MulScalar(2.0 * u.Dot(v))
	b := v.MulScalar(s*s - u.Dot(u))
	c := u.Cross(v).MulScalar(2.0 * s)
	return a.Add(b).Add(c)
}

// ------------------------------------------
// Mat4
// ------------------------------------------

func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

// Mul multiplies mt by other and returns the result.
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += mt.Data[k*4+row] * other.Data[col*4+k]
			}
			out.Data[col*4+row] = sum
		}
	}
	return out
}

// MulVec4 transforms v by mt.
func (mt Mat4) MulVec4(v Vec4) Vec4 {
	d := mt.Data
	return Vec4{
		d[0]*v.X + d[4]*v.Y + d[8]*v.Z + d[12]*v.W,
		d[1]*v.X + d[5]*v.Y + d[9]*v.Z + d[13]*v.W,
		d[2]*v.X + d[6]*v.Y + d[10]*v.Z + d[14]*v.W,
		d[3]*v.X + d[7]*v.Y + d[11]*v.Z + d[15]*v.W,
	}
}

// NewMat4Translation creates a translation matrix from position.
func NewMat4Translation(position Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[12] = position.X
	out.Data[13] = position.Y
	out.Data[14] = position.Z
	return out
}

// NewMat4EulerY creates a rotation matrix around the Y axis.
func NewMat4EulerY(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	c := Cos(angleRadians)
	s := Sin(angleRadians)
	out.Data[0] = c
	out.Data[2] = -s
	out.Data[8] = s
	out.Data[10] = c
	return out
}

// NewMat4Orthographic creates an orthographic projection matrix,
// used by the debug overlay.
func NewMat4Orthographic(left, right, bottom, top, nearClip, farClip float32) Mat4 {
	out := NewMat4Identity()

	lr := 1.0 / (left - right)
	bt := 1.0 / (bottom - top)
	nf := 1.0 / (nearClip - farClip)

	out.Data[0] = -2.0 * lr
	out.Data[5] = -2.0 * bt
	out.Data[10] = 2.0 * nf

	out.Data[12] = (left + right) * lr
	out.Data[13] = (top + bottom) * bt
	out.Data[14] = (farClip + nearClip) * nf
	return out
}

// NewMat4Perspective creates a perspective projection matrix.
// fovRadians is the vertical field of view.
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	halfTanFov := Tan(fovRadians * 0.5)
	out := Mat4{}
	out.Data[0] = 1.0 / (aspectRatio * halfTanFov)
	out.Data[5] = 1.0 / halfTanFov
	out.Data[10] = -((farClip + nearClip) / (farClip - nearClip))
	out.Data[11] = -1.0
	out.Data[14] = -((2.0 * farClip * nearClip) / (farClip - nearClip))
	return out
}

// NewMat4LookAt creates a matrix looking at target from position.
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	out := Mat4{}
	zAxis := target.Sub(position).Normalized()
	xAxis := up.Cross(zAxis).Normalized()
	yAxis := zAxis.Cross(xAxis)

	out.Data[0] = xAxis.X
	out.Data[1] = yAxis.X
	out.Data[2] = -zAxis.X
	out.Data[4] = xAxis.Y
	out.Data[5] = yAxis.Y
	out.Data[6] = -zAxis.Y
	out.Data[8] = xAxis.Z
	out.Data[9] = yAxis.Z
	out.Data[10] = -zAxis.Z
	out.Data[12] = -xAxis.Dot(position)
	out.Data[13] = -yAxis.Dot(position)
	out.Data[14] = zAxis.Dot(position)
	out.Data[15] = 1.0
	return out
}

func (mt Mat4) Transposed() Mat4 {
	out := Mat4{}
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out.Data[row*4+col] = mt.Data[col*4+row]
		}
	}
	return out
}

// Inverse returns the inverse of mt. The matrix must be invertible.
func (mt Mat4) Inverse() Mat4 {
	m := mt.Data

	t0 := m[10] * m[15]
	t1 := m[14] * m[11]
	t2 := m[6] * m[15]
	t3 := m[14] * m[7]
	t4 := m[6] * m[11]
	t5 := m[10] * m[7]
	t6 := m[2] * m[15]
	t7 := m[14] * m[3]
	t8 := m[2] * m[11]
	t9 := m[10] * m[3]
	t10 := m[2] * m[7]
	t11 := m[6] * m[3]
	t12 := m[8] * m[13]
	t13 := m[12] * m[9]
	t14 := m[4] * m[13]
	t15 := m[12] * m[5]
	t16 := m[4] * m[9]
	t17 := m[8] * m[5]
	t18 := m[0] * m[13]
	t19 := m[12] * m[1]
	t20 := m[0] * m[9]
	t21 := m[8] * m[1]
	t22 := m[0] * m[5]
	t23 := m[4] * m[1]

	out := Mat4{}
	o := &out.Data

	o[0] = (t0*m[5] + t3*m[9] + t4*m[13]) - (t1*m[5] + t2*m[9] + t5*m[13])
	o[1] = (t1*m[1] + t6*m[9] + t9*m[13]) - (t0*m[1] + t7*m[9] + t8*m[13])
	o[2] = (t2*m[1] + t7*m[5] + t10*m[13]) - (t3*m[1] + t6*m[5] + t11*m[13])
	o[3] = (t5*m[1] + t8*m[5] + t11*m[9]) - (t4*m[1] + t9*m[5] + t10*m[9])

	d := 1.0 / (m[0]*o[0] + m[4]*o[1] + m[8]*o[2] + m[12]*o[3])

	o[0] = d * o[0]
	o[1] = d * o[1]
	o[2] = d * o[2]
	o[3] = d * o[3]
	o[4] = d * ((t1*m[4] + t2*m[8] + t5*m[12]) - (t0*m[4] + t3*m[8] + t4*m[12]))
	o[5] = d * ((t0*m[0] + t7*m[8] + t8*m[12]) - (t1*m[0] + t6*m[8] + t9*m[12]))
	o[6] = d * ((t3*m[0] + t6*m[4] + t11*m[12]) - (t2*m[0] + t7*m[4] + t10*m[12]))
	o[7] = d * ((t4*m[0] + t9*m[4] + t10*m[8]) - (t5*m[0] + t8*m[4] + t11*m[8]))
	o[8] = d * ((t12*m[7] + t15*m[11] + t16*m[15]) - (t13*m[7] + t14*m[11] + t17*m[15]))
	o[9] = d * ((t13*m[3] + t18*m[11] + t21*m[15]) - (t12*m[3] + t19*m[11] + t20*m[15]))
	o[10] = d * ((t14*m[3] + t19*m[7] + t22*m[15]) - (t15*m[3] + t18*m[7] + t23*m[15]))
	o[11] = d * ((t17*m[3] + t20*m[7] + t23*m[11]) - (t16*m[3] + t21*m[7] + t22*m[11]))
	o[12] = d * ((t14*m[10] + t17*m[14] + t13*m[6]) - (t16*m[14] + t12*m[6] + t15*m[10]))
	o[13] = d * ((t20*m[14] + t12*m[2] + t19*m[10]) - (t18*m[10] + t21*m[14] + t13*m[2]))
	o[14] = d * ((t18*m[6] + t23*m[14] + t15*m[2]) - (t22*m[14] + t14*m[2] + t19*m[6]))
	o[15] = d * ((t22*m[10] + t16*m[2] + t21*m[6]) - (t20*m[6] + t23*m[10] + t17*m[2]))

	return out
}
