package engine

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is a camera-to-world rigid transform stored as a row-major 4x4 matrix.
// Camera axes: x right, y down, z forward.
type Pose [16]float64

// Identity returns the pose of a camera at the world origin looking down +z.
func Identity() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns the camera center in world coordinates.
func (p Pose) Translation() r3.Vector {
	return r3.Vector{X: p[3], Y: p[7], Z: p[11]}
}

// WithTranslation returns a copy of p with the camera center replaced.
func (p Pose) WithTranslation(t r3.Vector) Pose {
	p[3], p[7], p[11] = t.X, t.Y, t.Z
	return p
}

// Quaternion returns the rotation as (qx, qy, qz, qw) with qw >= 0.
func (p Pose) Quaternion() (float64, float64, float64, float64) {
	m00, m01, m02 := p[0], p[1], p[2]
	m10, m11, m12 := p[4], p[5], p[6]
	m20, m21, m22 := p[8], p[9], p[10]

	var qx, qy, qz, qw float64
	trace := m00 + m11 + m22
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		qw = 0.25 / s
		qx = (m21 - m12) * s
		qy = (m02 - m20) * s
		qz = (m10 - m01) * s
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		qw = (m21 - m12) / s
		qx = 0.25 * s
		qy = (m01 + m10) / s
		qz = (m02 + m20) / s
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		qw = (m02 - m20) / s
		qx = (m01 + m10) / s
		qy = 0.25 * s
		qz = (m12 + m21) / s
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		qw = (m10 - m01) / s
		qx = (m02 + m20) / s
		qy = (m12 + m21) / s
		qz = 0.25 * s
	}
	if qw < 0 {
		qx, qy, qz, qw = -qx, -qy, -qz, -qw
	}
	return qx, qy, qz, qw
}

// FromTranslationQuaternion builds a pose from a camera center and a unit
// rotation quaternion.
func FromTranslationQuaternion(tx, ty, tz, qx, qy, qz, qw float64) Pose {
	n := math.Sqrt(qx*qx + qy*qy + qz*qz + qw*qw)
	if n == 0 {
		return Identity().WithTranslation(r3.Vector{X: tx, Y: ty, Z: tz})
	}
	qx, qy, qz, qw = qx/n, qy/n, qz/n, qw/n
	return Pose{
		1 - 2*(qy*qy+qz*qz), 2 * (qx*qy - qz*qw), 2 * (qx*qz + qy*qw), tx,
		2 * (qx*qy + qz*qw), 1 - 2*(qx*qx+qz*qz), 2 * (qy*qz - qx*qw), ty,
		2 * (qx*qz - qy*qw), 2 * (qy*qz + qx*qw), 1 - 2*(qx*qx+qy*qy), tz,
		0, 0, 0, 1,
	}
}

// KeyFrame is one keyframe of the current map.
type KeyFrame struct {
	ID         int     `json:"id"`
	FrameID    int     `json:"frame_id"`
	Timestamp  float64 `json:"timestamp"`
	Pose       Pose    `json:"pose"`
	PointCount int     `json:"point_count"`
}
