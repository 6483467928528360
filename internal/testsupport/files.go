package testsupport

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vodrive/internal/frames"
)

// DefaultWidth and DefaultHeight size every synthetic frame.
const (
	DefaultWidth  = 32
	DefaultHeight = 24
)

// TexturedImage returns a checkerboard frame with high intensity variance.
func TexturedImage(width, height int) frames.Image {
	img := frames.Image{Width: width, Height: height, Pix: make([]byte, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Pix[y*width+x] = 220
			} else {
				img.Pix[y*width+x] = 30
			}
		}
	}
	return img
}

// FlatImage returns a uniform frame with zero intensity variance.
func FlatImage(width, height int) frames.Image {
	img := frames.Image{Width: width, Height: height, Pix: make([]byte, width*height)}
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

// WriteCalibration writes a pinhole camera.txt with no rectification.
func WriteCalibration(t testing.TB, path string, width, height int) {
	t.Helper()
	contents := fmt.Sprintf("Pinhole %d %d %d %d 0\n%d %d\nnone\n%d %d\n",
		width, width, width/2, height/2, width, height, width, height)
	writeText(t, path, contents)
}

// WriteGamma writes an identity inverse response with 256 entries.
func WriteGamma(t testing.TB, path string) {
	t.Helper()
	values := make([]string, 256)
	for i := range values {
		values[i] = fmt.Sprintf("%d", i)
	}
	writeText(t, path, strings.Join(values, " ")+"\n")
}

// WriteVignette writes a flat, fully bright vignette image.
func WriteVignette(t testing.TB, path string, width, height int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	writePNG(t, path, img)
}

// WriteSequence writes count PNG frames plus a times.txt next to dir. A nil
// timestamps slice spaces frames 0.05s apart; a nil textured func makes every
// frame textured.
func WriteSequence(t testing.TB, dir string, count int, timestamps []float64, textured func(int) bool) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	var times strings.Builder
	for i := 0; i < count; i++ {
		var src frames.Image
		if textured == nil || textured(i) {
			src = TexturedImage(DefaultWidth, DefaultHeight)
		} else {
			src = FlatImage(DefaultWidth, DefaultHeight)
		}
		img := image.NewGray(image.Rect(0, 0, src.Width, src.Height))
		copy(img.Pix, src.Pix)
		writePNG(t, filepath.Join(dir, fmt.Sprintf("%05d.png", i)), img)

		ts := float64(i) * 0.05
		if timestamps != nil {
			ts = timestamps[i]
		}
		fmt.Fprintf(&times, "%05d %.6f 10.0\n", i, ts)
	}
	writeText(t, filepath.Join(filepath.Dir(dir), "times.txt"), times.String())
}

func writePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func writeText(t testing.TB, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
