package observer

import (
	"sort"
	"sync"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
)

// Snapshot keeps the latest engine output for queries. All methods are safe
// for concurrent use; readers always get copies.
type Snapshot struct {
	mu sync.RWMutex

	pose      engine.Pose
	poseFrame int
	hasPose   bool

	keyFrames map[int]engine.KeyFrame

	image      frames.Image
	imageFrame int
	hasImage   bool

	resets int
	lost   bool
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{keyFrames: make(map[int]engine.KeyFrame)}
}

// PublishPose records the latest pose.
func (s *Snapshot) PublishPose(pose engine.Pose, frameID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = pose
	s.poseFrame = frameID
	s.hasPose = true
}

// PublishKeyFrames replaces the keyframe set.
func (s *Snapshot) PublishKeyFrames(keyFrames []engine.KeyFrame, _ bool) {
	next := make(map[int]engine.KeyFrame, len(keyFrames))
	for _, kf := range keyFrames {
		next[kf.ID] = kf
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyFrames = next
}

// PublishLiveFrame stores a copy of the latest image.
func (s *Snapshot) PublishLiveFrame(img frames.Image, frameID int) {
	clone := img.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = clone
	s.imageFrame = frameID
	s.hasImage = true
}

// Reset clears everything published by the previous engine.
func (s *Snapshot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = engine.Pose{}
	s.hasPose = false
	s.keyFrames = make(map[int]engine.KeyFrame)
	s.image = frames.Image{}
	s.hasImage = false
	s.lost = false
	s.resets++
}

// TrackingLost marks the snapshot as lost until the next reset.
func (s *Snapshot) TrackingLost(int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = true
}

// CurrentPose returns the latest camera-to-world pose and its frame id.
// ok is false before the first pose and after a reset.
func (s *Snapshot) CurrentPose() (engine.Pose, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.poseFrame, s.hasPose
}

// KeyFrames returns the keyframe set sorted by id.
func (s *Snapshot) KeyFrames() []engine.KeyFrame {
	s.mu.RLock()
	out := make([]engine.KeyFrame, 0, len(s.keyFrames))
	for _, kf := range s.keyFrames {
		out = append(out, kf)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KeyFrameCount returns the number of keyframes.
func (s *Snapshot) KeyFrameCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keyFrames)
}

// CurrentImage returns a copy of the latest live frame and its id.
func (s *Snapshot) CurrentImage() (frames.Image, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasImage {
		return frames.Image{}, 0, false
	}
	return s.image.Clone(), s.imageFrame, true
}

// Resets returns how many resets the snapshot has observed.
func (s *Snapshot) Resets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resets
}

// Lost reports whether tracking was lost since the last reset.
func (s *Snapshot) Lost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lost
}
