package session

// State is the health of the engine currently held by a Session.
type State int

const (
	// Uninitialized means the engine has not reported initialization yet.
	Uninitialized State = iota
	// Tracking means the engine is initialized and tracking.
	Tracking
	// InitFailed means the engine gave up initializing, or could not be
	// constructed.
	InitFailed
	// Lost means the engine lost tracking after initializing.
	Lost
	// Terminated means the session was shut down.
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	case InitFailed:
		return "init_failed"
	case Lost:
		return "lost"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reset reasons reported to metrics and logs.
const (
	ReasonRequested  = "requested"
	ReasonInitFailed = "init_failed"
)
