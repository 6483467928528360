// Package frames defines the image and frame values that flow from a source
// through undistortion into the engine, plus the stored-sequence Source used
// for offline playback.
//
// A sequence is either a directory of images or a .zip archive of images.
// Files are ordered by name. Per-frame timestamps and exposures come from a
// times.txt file ("id timestamp [exposure_ms]" per line) found next to the
// sequence or inside the directory; without one, every timestamp and exposure
// is zero and playback must run unthrottled.
package frames
