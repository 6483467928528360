package testsupport

import (
	"path/filepath"
	"testing"

	"vodrive/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test and
// a pinhole calibration for DefaultWidth x DefaultHeight images. Live mode is
// the default; use WithSequence for playback.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Source = ""
	cfgVal.Paths.Calibration = filepath.Join(base, "camera.txt")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.HTTP.Bind = "127.0.0.1:0"
	WriteCalibration(t, cfgVal.Paths.Calibration, DefaultWidth, DefaultHeight)

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSequence writes a sequence of count frames into the config's temp tree
// and points paths.source at it. textured decides, per index, whether the
// frame carries enough texture to track.
func WithSequence(count int, timestamps []float64, textured func(int) bool) ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "sequence", "images")
		WriteSequence(b.t, dir, count, timestamps, textured)
		b.cfg.Paths.Source = dir
	}
}

// WithSpeed overrides the playback speed.
func WithSpeed(speed float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.Speed = speed
	}
}

// WithPhotometric writes a gamma file and a flat vignette next to the calibration.
func WithPhotometric() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.Gamma = filepath.Join(b.baseDir, "pcalib.txt")
		b.cfg.Paths.Vignette = filepath.Join(b.baseDir, "vignette.png")
		WriteGamma(b.t, b.cfg.Paths.Gamma)
		WriteVignette(b.t, b.cfg.Paths.Vignette, DefaultWidth, DefaultHeight)
	}
}

// WithEngine overrides reference engine tuning.
func WithEngine(initFrames, initFailFrames, keyFrameInterval int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.InitFrames = initFrames
		b.cfg.Engine.InitFailFrames = initFailFrames
		b.cfg.Engine.KeyFrameInterval = keyFrameInterval
	}
}

// WithResetThreshold overrides the automatic reset threshold.
func WithResetThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.ResetThreshold = threshold
	}
}

// WithTrajectory enables trajectory recording.
func WithTrajectory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Trajectory.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.Calibration)
}
