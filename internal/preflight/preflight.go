package preflight

import (
	"vodrive/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
	Hint     string `json:"hint,omitempty"`
}

// Report is the ordered set of check results for a config.
type Report struct {
	Checks []Result `json:"checks"`
}

// OK reports whether every required check passed.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Passed && !check.Optional {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r Report) Failed() []Result {
	var failed []Result
	for _, check := range r.Checks {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Run executes all applicable preflight checks for the given config.
// Photometric files are only checked when configured.
func Run(cfg *config.Config) Report {
	if cfg == nil {
		return Report{}
	}

	var results []Result

	calibration := CheckFileReadable("calibration", cfg.Paths.Calibration)
	if !calibration.Passed {
		calibration.Hint = "set paths.calibration or VODRIVE_CALIBRATION to a readable camera file"
	}
	results = append(results, calibration)

	if cfg.Paths.Gamma != "" {
		results = append(results, optional(CheckFileReadable("gamma", cfg.Paths.Gamma),
			"photometric response is skipped without a readable gamma file"))
	}
	if cfg.Paths.Vignette != "" {
		results = append(results, optional(CheckFileReadable("vignette", cfg.Paths.Vignette),
			"vignette correction is skipped without a readable image"))
	}
	if cfg.HasSource() {
		results = append(results, optional(CheckSource(cfg.Paths.Source),
			"the controller runs live-only without a readable sequence"))
	}

	results = append(results, CheckDirectoryAccess("state_dir", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("log_dir", cfg.Paths.LogDir))
	results = append(results, CheckSocketPath(cfg.SocketPath()))
	if cfg.HTTP.Enabled {
		results = append(results, optional(CheckBindAvailable(cfg.HTTP.Bind),
			"metrics and the event stream are unavailable while the address is taken"))
	}

	return Report{Checks: results}
}

func optional(result Result, hint string) Result {
	result.Optional = true
	if !result.Passed {
		result.Hint = hint
	}
	return result
}
