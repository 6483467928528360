// Package undistort maps raw camera images to rectified, photometrically
// corrected irradiance images.
//
// Geometric calibration uses the four-line camera.txt layout:
//
//	<Model> fx fy cx cy [distortion...]
//	in_width in_height
//	none | crop | full | fx fy cx cy 0
//	out_width out_height
//
// Supported models are Pinhole, RadTan, FOV (also the legacy five-number
// form) and EquiDistant. Intrinsics below one on both principal point
// coordinates are read as relative to the image size. "crop" and "full"
// rescale the input intrinsics to the output size rather than searching for
// an optimal rectified camera.
//
// Photometric calibration is optional: a 256-entry inverse response (gamma)
// file and a vignette image. Both are applied at input resolution before the
// geometric remap.
package undistort
