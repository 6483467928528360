// Package controller is the host-facing handle on one engine session.
//
// Init builds the frame source, the undistorter and the engine session from
// an immutable configuration and fails explicitly when calibration cannot be
// loaded. Start runs offline playback on a background goroutine; Stop cancels
// and joins it. Feed is the live path and may be called from any goroutine.
// The query methods read snapshots kept by an output registered on the
// session, so they are safe to call while frames are fed or the engine is
// reset.
package controller
