package ipc

import (
	"vodrive/internal/controller"
	"vodrive/internal/engine"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops playback and releases the daemon lock.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and controller status.
type StatusResponse struct {
	Running          bool              `json:"running"`
	PID              int               `json:"pid"`
	UptimeSeconds    float64           `json:"uptime_seconds"`
	Controller       controller.Status `json:"controller"`
	LockPath         string            `json:"lock_path"`
	TrajectoryDBPath string            `json:"trajectory_db_path"`
	TrajectoryRun    string            `json:"trajectory_run"`
	TrajectoryDrops  int64             `json:"trajectory_drops"`
	HTTPAddress      string            `json:"http_address"`
	StreamClients    int               `json:"stream_clients"`
}

// ResetRequest asks for an engine reset.
type ResetRequest struct{}

// ResetResponse acknowledges a reset request.
type ResetResponse struct {
	Pending bool `json:"pending"`
}

// OnFrameRequest carries one live 8-bit grayscale frame, row-major.
type OnFrameRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// OnFrameResponse reports the frame id assigned to a live frame. Status is
// always zero when the frame was accepted.
type OnFrameResponse struct {
	Status  int `json:"status"`
	FrameID int `json:"frame_id"`
}

// IntrinsicsRequest fetches the rectified camera parameters.
type IntrinsicsRequest struct{}

// IntrinsicsResponse holds [fx, fy, cx, cy] of the rectified camera.
type IntrinsicsResponse struct {
	Values [4]float64 `json:"values"`
}

// ResolutionRequest fetches the rectified image size.
type ResolutionRequest struct{}

// ResolutionResponse holds the rectified image size.
type ResolutionResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CurrentPoseRequest fetches the latest pose.
type CurrentPoseRequest struct{}

// CurrentPoseResponse holds the latest camera-to-world pose.
type CurrentPoseResponse struct {
	Available bool        `json:"available"`
	FrameID   int         `json:"frame_id"`
	Pose      engine.Pose `json:"pose"`
}

// KeyFramesRequest fetches the current keyframe set.
type KeyFramesRequest struct{}

// KeyFramesResponse contains keyframes ordered by id.
type KeyFramesResponse struct {
	KeyFrames []engine.KeyFrame `json:"keyframes"`
}

// KeyFrameCountRequest fetches the keyframe count.
type KeyFrameCountRequest struct{}

// KeyFrameCountResponse holds the keyframe count.
type KeyFrameCountResponse struct {
	Count int `json:"count"`
}

// CurrentImageRequest fetches the latest processed frame.
type CurrentImageRequest struct{}

// CurrentImageResponse holds a copy of the latest processed frame.
type CurrentImageResponse struct {
	Available bool   `json:"available"`
	FrameID   int    `json:"frame_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Pix       []byte `json:"pix"`
}
