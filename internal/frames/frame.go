package frames

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame reports an empty or inconsistent image buffer.
var ErrInvalidFrame = errors.New("invalid frame")

// Image is an 8-bit grayscale image stored row-major.
type Image struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// Validate checks that the buffer matches the declared dimensions.
func (img Image) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, img.Width, img.Height)
	}
	if len(img.Pix) != img.Width*img.Height {
		return fmt.Errorf("%w: buffer holds %d bytes, want %d", ErrInvalidFrame, len(img.Pix), img.Width*img.Height)
	}
	return nil
}

// Clone returns a deep copy of the image.
func (img Image) Clone() Image {
	out := Image{Width: img.Width, Height: img.Height}
	if img.Pix != nil {
		out.Pix = append([]byte(nil), img.Pix...)
	}
	return out
}

// Frame is one raw image on its way to the engine.
type Frame struct {
	Image
	// ID is assigned by the controller: the sequence index during playback,
	// a monotonic counter in live mode.
	ID int
	// Exposure in milliseconds; zero when unknown.
	Exposure float32
	// Timestamp in seconds; only meaningful during playback.
	Timestamp float64
}

// ImageAndExposure is the undistorted, photometrically corrected image handed
// to the engine.
type ImageAndExposure struct {
	Width      int
	Height     int
	Irradiance []float32
	Exposure   float32
	Timestamp  float64
}

// NewImageAndExposure allocates a zeroed irradiance buffer.
func NewImageAndExposure(width, height int, exposure float32, timestamp float64) *ImageAndExposure {
	return &ImageAndExposure{
		Width:      width,
		Height:     height,
		Irradiance: make([]float32, width*height),
		Exposure:   exposure,
		Timestamp:  timestamp,
	}
}

// Bytes estimates the memory held by the buffer.
func (img *ImageAndExposure) Bytes() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Irradiance)) * 4
}
