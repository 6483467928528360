package frames

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ErrIndexOutOfRange reports a request outside the sequence.
var ErrIndexOutOfRange = errors.New("frame index out of range")

// Source supplies a finite, pre-indexed image sequence.
type Source interface {
	Len() int
	Timestamp(index int) float64
	Exposure(index int) float32
	Image(index int) (Image, error)
	Close() error
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".pgm":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}

// SequenceSource reads a directory or zip archive of images.
type SequenceSource struct {
	path       string
	files      []string
	zipFiles   map[string]*zip.File
	archive    *zip.ReadCloser
	timestamps []float64
	exposures  []float32

	ignoredTimes string
	ignoredLines int
}

// Open indexes the sequence at path. It does not decode any image.
func Open(path string) (*SequenceSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sequence path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat sequence %q: %w", path, err)
	}

	src := &SequenceSource{path: path}
	switch {
	case info.IsDir():
		if err := src.indexDirectory(); err != nil {
			return nil, err
		}
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		if err := src.indexArchive(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("sequence %q is neither a directory nor a .zip archive", path)
	}
	if len(src.files) == 0 {
		src.Close()
		return nil, fmt.Errorf("sequence %q contains no images", path)
	}

	if err := src.loadTimes(); err != nil {
		src.Close()
		return nil, err
	}
	return src, nil
}

func (s *SequenceSource) indexDirectory() error {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("read sequence directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		s.files = append(s.files, filepath.Join(s.path, entry.Name()))
	}
	sort.Strings(s.files)
	return nil
}

func (s *SequenceSource) indexArchive() error {
	archive, err := zip.OpenReader(s.path)
	if err != nil {
		return fmt.Errorf("open sequence archive: %w", err)
	}
	s.archive = archive
	s.zipFiles = make(map[string]*zip.File, len(archive.File))
	for _, file := range archive.File {
		if file.FileInfo().IsDir() || !isImageName(file.Name) {
			continue
		}
		s.files = append(s.files, file.Name)
		s.zipFiles[file.Name] = file
	}
	sort.Strings(s.files)
	return nil
}

func isImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// loadTimes reads times.txt when present. A file whose line count does not
// match the image count is ignored and reported by IgnoredTimes.
func (s *SequenceSource) loadTimes() error {
	n := len(s.files)
	s.timestamps = make([]float64, n)
	s.exposures = make([]float32, n)

	candidates := []string{filepath.Join(filepath.Dir(s.path), "times.txt")}
	if s.archive == nil {
		candidates = append([]string{filepath.Join(s.path, "times.txt")}, candidates...)
	}
	for _, candidate := range candidates {
		file, err := os.Open(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("open times file: %w", err)
		}
		timestamps, exposures, err := ParseTimes(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", candidate, err)
		}
		if len(timestamps) != n {
			s.ignoredTimes = candidate
			s.ignoredLines = len(timestamps)
			return nil
		}
		s.timestamps = timestamps
		s.exposures = exposures
		return nil
	}
	return nil
}

// ParseTimes reads "id timestamp [exposure]" lines. Blank lines and lines
// starting with '#' are skipped.
func ParseTimes(r io.Reader) ([]float64, []float32, error) {
	var timestamps []float64
	var exposures []float32
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("line %d: expected id and timestamp", line)
		}
		ts, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		var exposure float64
		if len(fields) >= 3 {
			exposure, err = strconv.ParseFloat(fields[2], 32)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: exposure: %w", line, err)
			}
		}
		timestamps = append(timestamps, ts)
		exposures = append(exposures, float32(exposure))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return timestamps, exposures, nil
}

// IgnoredTimes returns the times file that was skipped because its entry
// count differs from the image count, and how many entries it held.
func (s *SequenceSource) IgnoredTimes() (path string, entries int, ok bool) {
	return s.ignoredTimes, s.ignoredLines, s.ignoredTimes != ""
}

// Len returns the number of images in the sequence.
func (s *SequenceSource) Len() int { return len(s.files) }

// Timestamp returns the source timestamp in seconds, or zero when unknown.
func (s *SequenceSource) Timestamp(index int) float64 {
	if index < 0 || index >= len(s.timestamps) {
		return 0
	}
	return s.timestamps[index]
}

// Exposure returns the exposure in milliseconds, or zero when unknown.
func (s *SequenceSource) Exposure(index int) float32 {
	if index < 0 || index >= len(s.exposures) {
		return 0
	}
	return s.exposures[index]
}

// Image decodes the image at index into 8-bit grayscale.
func (s *SequenceSource) Image(index int) (Image, error) {
	if index < 0 || index >= len(s.files) {
		return Image{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(s.files))
	}
	name := s.files[index]

	var rc io.ReadCloser
	var err error
	if s.archive != nil {
		rc, err = s.zipFiles[name].Open()
	} else {
		rc, err = os.Open(name)
	}
	if err != nil {
		return Image{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	var decoded image.Image
	if strings.EqualFold(filepath.Ext(name), ".pgm") {
		decoded, err = decodePGM(bufio.NewReader(rc))
	} else {
		decoded, _, err = image.Decode(rc)
	}
	if err != nil {
		return Image{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return ToGray(decoded), nil
}

// Close releases the archive handle, if any.
func (s *SequenceSource) Close() error {
	if s == nil || s.archive == nil {
		return nil
	}
	err := s.archive.Close()
	s.archive = nil
	return err
}

// ToGray converts any decoded image into an 8-bit grayscale Image.
func ToGray(src image.Image) Image {
	bounds := src.Bounds()
	gray, ok := src.(*image.Gray)
	if !ok || gray.Stride != bounds.Dx() || bounds.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)
	}
	return Image{Width: bounds.Dx(), Height: bounds.Dy(), Pix: gray.Pix}
}
