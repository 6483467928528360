package controller

import (
	"errors"

	"vodrive/internal/frames"
)

var (
	// ErrNotInitialized is returned by methods called on a nil Controller.
	ErrNotInitialized = errors.New("controller not initialized")
	// ErrClosed is returned by methods called after Close.
	ErrClosed = errors.New("controller closed")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("playback already started")
	// ErrNoSource is returned by Start when no image sequence is configured.
	ErrNoSource = errors.New("no playback source configured")
	// ErrInvalidFrame is returned by Feed for empty or inconsistent images.
	ErrInvalidFrame = frames.ErrInvalidFrame
)
