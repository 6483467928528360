package stream

import (
	"time"

	"vodrive/internal/engine"
)

// Event types broadcast to websocket clients.
const (
	EventPose      = "pose"
	EventKeyFrames = "keyframes"
	EventFrame     = "frame"
	EventReset     = "reset"
	EventLost      = "lost"
	EventLog       = "log"
)

// Event is the JSON document written to every client for each engine output.
type Event struct {
	Type        string            `json:"type"`
	Time        time.Time         `json:"time"`
	Generation  int64             `json:"generation"`
	FrameID     *int              `json:"frame_id,omitempty"`
	Pose        *engine.Pose      `json:"pose,omitempty"`
	Translation []float64         `json:"translation,omitempty"`
	KeyFrames   []engine.KeyFrame `json:"keyframes,omitempty"`
	Final       bool              `json:"final,omitempty"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	Level       string            `json:"level,omitempty"`
	Message     string            `json:"message,omitempty"`
	Fields      map[string]any    `json:"fields,omitempty"`
}

func frameRef(id int) *int {
	return &id
}
