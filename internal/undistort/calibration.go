package undistort

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Output rectification modes read from line three of camera.txt.
const (
	OutputNone   = "none"
	OutputCrop   = "crop"
	OutputFull   = "full"
	OutputManual = "manual"
)

// Calibration is a parsed camera.txt.
type Calibration struct {
	Model      Model
	Input      Intrinsics
	Output     Intrinsics
	OutputMode string
}

// LoadCalibration reads and parses the geometric calibration at path.
func LoadCalibration(path string) (*Calibration, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calibration: %w", err)
	}
	defer file.Close()

	calib, err := ParseCalibration(file)
	if err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	return calib, nil
}

// ParseCalibration reads the four-line calibration layout.
func ParseCalibration(r io.Reader) (*Calibration, error) {
	lines, err := readLines(r, 4)
	if err != nil {
		return nil, err
	}

	model, params, err := parseModelLine(lines[0])
	if err != nil {
		return nil, fmt.Errorf("line 1: %w", err)
	}
	inW, inH, err := parseSize(lines[1])
	if err != nil {
		return nil, fmt.Errorf("line 2: %w", err)
	}
	outW, outH, err := parseSize(lines[3])
	if err != nil {
		return nil, fmt.Errorf("line 4: %w", err)
	}

	input := absoluteIntrinsics(params, inW, inH)
	if !input.Valid() {
		return nil, fmt.Errorf("line 1: invalid intrinsics %s", input)
	}

	calib := &Calibration{Model: model, Input: input}
	mode := strings.ToLower(strings.TrimSpace(lines[2]))
	switch mode {
	case OutputNone, OutputCrop, OutputFull:
		calib.OutputMode = mode
		calib.Output = input.scaled(outW, outH)
	default:
		values, err := parseFloats(mode)
		if err != nil || len(values) < 4 {
			return nil, fmt.Errorf("line 3: expected none, crop, full or fx fy cx cy, got %q", lines[2])
		}
		calib.OutputMode = OutputManual
		calib.Output = absoluteIntrinsics(values[:4], outW, outH)
		if !calib.Output.Valid() {
			return nil, fmt.Errorf("line 3: invalid output intrinsics %s", calib.Output)
		}
	}
	return calib, nil
}

func readLines(r io.Reader, want int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	lines := make([]string, 0, want)
	for scanner.Scan() && len(lines) < want {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) < want {
		return nil, fmt.Errorf("expected %d lines, got %d", want, len(lines))
	}
	return lines, nil
}

// parseModelLine returns the model and the raw fx fy cx cy values. A line
// starting with a number is the legacy form: four or five values mean FOV,
// eight mean RadTan.
func parseModelLine(line string) (Model, []float64, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("empty model line")
	}

	name := fields[0]
	numeric := fields[1:]
	if _, err := strconv.ParseFloat(name, 64); err == nil {
		numeric = fields
		switch len(fields) {
		case 4, 5:
			name = "FOV"
		case 8:
			name = "RadTan"
		default:
			return nil, nil, fmt.Errorf("legacy calibration with %d values", len(fields))
		}
	}

	values, err := parseFloats(strings.Join(numeric, " "))
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 4 {
		return nil, nil, fmt.Errorf("expected fx fy cx cy, got %d values", len(values))
	}
	distortion := values[4:]
	if strings.EqualFold(name, "FOV") && len(distortion) == 0 {
		distortion = []float64{0}
	}
	model, err := newModel(name, distortion)
	if err != nil {
		return nil, nil, err
	}
	return model, values[:4], nil
}

// absoluteIntrinsics converts relative intrinsics (principal point below one)
// to pixels.
func absoluteIntrinsics(v []float64, width, height int) Intrinsics {
	k := Intrinsics{FX: v[0], FY: v[1], CX: v[2], CY: v[3], Width: width, Height: height}
	if k.CX < 1 && k.CY < 1 {
		k.FX *= float64(width)
		k.FY *= float64(height)
		k.CX = k.CX*float64(width) - 0.5
		k.CY = k.CY*float64(height) - 0.5
	}
	return k
}

func parseSize(line string) (int, int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("expected width height, got %q", line)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("width: %w", err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("height: %w", err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %dx%d must be positive", w, h)
	}
	return w, h, nil
}

func parseFloats(line string) ([]float64, error) {
	fields := strings.Fields(line)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}
