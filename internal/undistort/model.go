package undistort

import (
	"fmt"
	"math"
	"strings"
)

// Model distorts normalized pinhole coordinates into normalized sensor
// coordinates of the raw camera.
type Model interface {
	Name() string
	Distort(x, y float64) (float64, float64)
}

type pinholeModel struct{}

func (pinholeModel) Name() string { return "Pinhole" }

func (pinholeModel) Distort(x, y float64) (float64, float64) { return x, y }

type radTanModel struct {
	k1, k2, p1, p2 float64
}

func (radTanModel) Name() string { return "RadTan" }

func (m radTanModel) Distort(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + m.k1*r2 + m.k2*r2*r2
	xd := x*radial + 2*m.p1*x*y + m.p2*(r2+2*x*x)
	yd := y*radial + m.p1*(r2+2*y*y) + 2*m.p2*x*y
	return xd, yd
}

type fovModel struct {
	omega float64
}

func (fovModel) Name() string { return "FOV" }

func (m fovModel) Distort(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if m.omega == 0 || r < 1e-8 {
		return x, y
	}
	factor := math.Atan(r*2*math.Tan(m.omega/2)) / (m.omega * r)
	return x * factor, y * factor
}

type equiDistantModel struct {
	k1, k2, k3, k4 float64
}

func (equiDistantModel) Name() string { return "EquiDistant" }

func (m equiDistantModel) Distort(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r < 1e-8 {
		return x, y
	}
	theta := math.Atan(r)
	t2 := theta * theta
	thetaD := theta * (1 + t2*(m.k1+t2*(m.k2+t2*(m.k3+t2*m.k4))))
	factor := thetaD / r
	return x * factor, y * factor
}

// newModel builds a distortion model from its name and distortion parameters
// (the values after fx fy cx cy).
func newModel(name string, params []float64) (Model, error) {
	need := func(n int) error {
		if len(params) < n {
			return fmt.Errorf("camera model %s needs %d distortion parameters, got %d", name, n, len(params))
		}
		return nil
	}
	switch strings.ToLower(name) {
	case "pinhole":
		return pinholeModel{}, nil
	case "radtan":
		if err := need(4); err != nil {
			return nil, err
		}
		return radTanModel{k1: params[0], k2: params[1], p1: params[2], p2: params[3]}, nil
	case "fov", "atan":
		if err := need(1); err != nil {
			return nil, err
		}
		return fovModel{omega: params[0]}, nil
	case "equidistant", "kannalabrandt":
		if err := need(4); err != nil {
			return nil, err
		}
		return equiDistantModel{k1: params[0], k2: params[1], k3: params[2], k4: params[3]}, nil
	default:
		return nil, fmt.Errorf("unsupported camera model %q", name)
	}
}
