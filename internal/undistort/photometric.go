package undistort

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// GammaSize is the number of entries in an inverse response function.
const GammaSize = 256

// LoadGamma reads a 256-value inverse response and rescales it to [0, 255].
// The values must be strictly increasing.
func LoadGamma(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gamma: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < GammaSize {
		return nil, fmt.Errorf("gamma %s: expected %d values, got %d", path, GammaSize, len(fields))
	}
	values := make([]float64, GammaSize)
	for i := range values {
		if values[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return nil, fmt.Errorf("gamma %s: value %d: %w", path, i, err)
		}
		if i > 0 && values[i] <= values[i-1] {
			return nil, fmt.Errorf("gamma %s: response must be strictly increasing at %d", path, i)
		}
	}

	lo, hi := values[0], values[GammaSize-1]
	gamma := make([]float32, GammaSize)
	for i, v := range values {
		gamma[i] = float32(255 * (v - lo) / (hi - lo))
	}
	return gamma, nil
}

// IdentityGamma returns the linear response used when no gamma file is configured.
func IdentityGamma() []float32 {
	gamma := make([]float32, GammaSize)
	for i := range gamma {
		gamma[i] = float32(i)
	}
	return gamma
}

// LoadVignette reads a vignette image, resamples it to width x height when
// needed, and returns the per-pixel inverse attenuation normalized so the
// brightest pixel is 1.
func LoadVignette(path string, width, height int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vignette: %w", err)
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode vignette %s: %w", path, err)
	}

	dst := image.NewGray16(image.Rect(0, 0, width, height))
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	var peak uint16
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if v := dst.Gray16At(x, y).Y; v > peak {
				peak = v
			}
		}
	}
	if peak == 0 {
		return nil, fmt.Errorf("vignette %s is completely dark", path)
	}

	inv := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := float32(dst.Gray16At(x, y).Y) / float32(peak)
			if v < 1e-3 {
				v = 1e-3
			}
			inv[y*width+x] = 1 / v
		}
	}
	return inv, nil
}
