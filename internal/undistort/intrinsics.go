package undistort

import "fmt"

// Intrinsics describe the pinhole camera of the rectified output image.
type Intrinsics struct {
	FX     float64 `json:"fx"`
	FY     float64 `json:"fy"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Vector returns [fx, fy, cx, cy].
func (k Intrinsics) Vector() [4]float64 {
	return [4]float64{k.FX, k.FY, k.CX, k.CY}
}

// Valid reports whether focal lengths and image size are positive.
func (k Intrinsics) Valid() bool {
	return k.FX > 0 && k.FY > 0 && k.Width > 0 && k.Height > 0
}

func (k Intrinsics) String() string {
	return fmt.Sprintf("fx=%.3f fy=%.3f cx=%.3f cy=%.3f %dx%d", k.FX, k.FY, k.CX, k.CY, k.Width, k.Height)
}

// scaled rescales intrinsics to a new image size using pixel-center
// conventions.
func (k Intrinsics) scaled(width, height int) Intrinsics {
	sx := float64(width) / float64(k.Width)
	sy := float64(height) / float64(k.Height)
	return Intrinsics{
		FX:     k.FX * sx,
		FY:     k.FY * sy,
		CX:     (k.CX+0.5)*sx - 0.5,
		CY:     (k.CY+0.5)*sy - 0.5,
		Width:  width,
		Height: height,
	}
}
