package undistort

import (
	"fmt"
	"math"
	"strings"

	"vodrive/internal/frames"
)

// Undistorter maps a raw image plus exposure metadata to a corrected image.
// Implementations must be safe for concurrent use.
type Undistorter interface {
	Undistort(img frames.Image, exposure float32, timestamp float64) (*frames.ImageAndExposure, error)
	Intrinsics() Intrinsics
	// Gamma returns the photometric response handed to the engine, or nil
	// when no response is calibrated.
	Gamma() []float32
}

// Rectifier is the table-driven Undistorter built from calibration files.
// It holds no mutable state after construction.
type Rectifier struct {
	calib       *Calibration
	lookup      []float32
	gamma       []float32
	vignetteInv []float32
	remapX      []float32
	remapY      []float32
}

// Load builds a Rectifier from a calibration path plus optional gamma and
// vignette paths (empty to skip).
func Load(calibrationPath, gammaPath, vignettePath string) (*Rectifier, error) {
	if strings.TrimSpace(calibrationPath) == "" {
		return nil, fmt.Errorf("calibration path is empty")
	}
	calib, err := LoadCalibration(calibrationPath)
	if err != nil {
		return nil, err
	}

	var gamma, vignetteInv []float32
	if strings.TrimSpace(gammaPath) != "" {
		if gamma, err = LoadGamma(gammaPath); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(vignettePath) != "" {
		if vignetteInv, err = LoadVignette(vignettePath, calib.Input.Width, calib.Input.Height); err != nil {
			return nil, err
		}
	}
	return New(calib, gamma, vignetteInv), nil
}

// New precomputes the remap table for calib. gamma and vignetteInv may be nil.
func New(calib *Calibration, gamma, vignetteInv []float32) *Rectifier {
	r := &Rectifier{calib: calib, gamma: gamma, vignetteInv: vignetteInv}
	r.lookup = gamma
	if r.lookup == nil {
		r.lookup = IdentityGamma()
	}
	if !r.isIdentity() {
		r.buildRemap()
	}
	return r
}

func (r *Rectifier) isIdentity() bool {
	_, pinhole := r.calib.Model.(pinholeModel)
	return pinhole && r.calib.Output == r.calib.Input
}

func (r *Rectifier) buildRemap() {
	in, out := r.calib.Input, r.calib.Output
	n := out.Width * out.Height
	r.remapX = make([]float32, n)
	r.remapY = make([]float32, n)
	for v := 0; v < out.Height; v++ {
		for u := 0; u < out.Width; u++ {
			x := (float64(u) - out.CX) / out.FX
			y := (float64(v) - out.CY) / out.FY
			xd, yd := r.calib.Model.Distort(x, y)
			idx := v*out.Width + u
			r.remapX[idx] = float32(in.FX*xd + in.CX)
			r.remapY[idx] = float32(in.FY*yd + in.CY)
		}
	}
}

// Intrinsics returns the rectified camera.
func (r *Rectifier) Intrinsics() Intrinsics { return r.calib.Output }

// InputSize returns the raw image size the rectifier accepts.
func (r *Rectifier) InputSize() (int, int) { return r.calib.Input.Width, r.calib.Input.Height }

// Gamma returns the calibrated response or nil.
func (r *Rectifier) Gamma() []float32 { return r.gamma }

// Undistort applies photometric correction at input resolution, then remaps
// to the rectified camera with bilinear sampling. Samples falling outside the
// raw image are zero.
func (r *Rectifier) Undistort(img frames.Image, exposure float32, timestamp float64) (*frames.ImageAndExposure, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	in := r.calib.Input
	if img.Width != in.Width || img.Height != in.Height {
		return nil, fmt.Errorf("%w: image is %dx%d, calibration expects %dx%d",
			frames.ErrInvalidFrame, img.Width, img.Height, in.Width, in.Height)
	}

	corrected := make([]float32, len(img.Pix))
	for i, p := range img.Pix {
		value := r.lookup[p]
		if r.vignetteInv != nil {
			value *= r.vignetteInv[i]
		}
		corrected[i] = value
	}

	out := r.calib.Output
	if r.remapX == nil {
		return &frames.ImageAndExposure{
			Width:      out.Width,
			Height:     out.Height,
			Irradiance: corrected,
			Exposure:   exposure,
			Timestamp:  timestamp,
		}, nil
	}

	result := frames.NewImageAndExposure(out.Width, out.Height, exposure, timestamp)
	for idx := range result.Irradiance {
		result.Irradiance[idx] = bilinear(corrected, in.Width, in.Height, r.remapX[idx], r.remapY[idx])
	}
	return result, nil
}

func bilinear(src []float32, width, height int, x, y float32) float32 {
	if x < 0 || y < 0 || x > float32(width-1) || y > float32(height-1) || math.IsNaN(float64(x)) {
		return 0
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= width {
		x1 = x0
	}
	if y1 >= height {
		y1 = y0
	}
	dx, dy := x-float32(x0), y-float32(y0)
	top := src[y0*width+x0]*(1-dx) + src[y0*width+x1]*dx
	bottom := src[y1*width+x0]*(1-dx) + src[y1*width+x1]*dx
	return top*(1-dy) + bottom*dy
}
