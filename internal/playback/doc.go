// Package playback schedules offline replay of a stored image sequence.
//
// A Plan maps each selected frame index to a target presentation time
// relative to the start of the run. The Pacer sleeps the playback goroutine
// until a frame is due or tells the caller to skip it when it is too late.
// Callers rebase the Pacer while the engine is not initialized so pacing
// restarts relative to each (re)initialization. Preload undistorts every
// frame of a plan up front, bounded by available memory.
package playback
