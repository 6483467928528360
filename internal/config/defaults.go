package config

const (
	defaultSourceDir             = "~/.local/share/vodrive/images"
	defaultLogDir                = "~/.local/share/vodrive/logs"
	defaultStateDir              = "~/.local/share/vodrive/state"
	defaultSocketName            = "vodrive.sock"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultPlaybackEnd           = 100000
	defaultPreloadMemoryFraction = 0.5
	defaultResetThreshold        = 250
	defaultInitFrames            = 5
	defaultInitFailFrames        = 30
	defaultKeyFrameInterval      = 5
	defaultTextureThreshold      = 2.0
	defaultHTTPBind              = "127.0.0.1:7491"
	defaultHTTPEnabled           = true
	defaultTrajectoryEnabled     = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Source:   defaultSourceDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Playback: Playback{
			Speed:                 0,
			PreloadMemoryFraction: defaultPreloadMemoryFraction,
			Start:                 0,
			End:                   defaultPlaybackEnd,
		},
		Engine: Engine{
			ResetThreshold:   defaultResetThreshold,
			InitFrames:       defaultInitFrames,
			InitFailFrames:   defaultInitFailFrames,
			KeyFrameInterval: defaultKeyFrameInterval,
			TextureThreshold: defaultTextureThreshold,
		},
		HTTP: HTTP{
			Enabled: defaultHTTPEnabled,
			Bind:    defaultHTTPBind,
		},
		Trajectory: Trajectory{
			Enabled: defaultTrajectoryEnabled,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
