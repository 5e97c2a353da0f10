// Package coords maps the normalized drawing canvas onto the physical
// drawing box of the arm.
//
// All geometry inside sketchd lives in the normalized square [0,1]x[0,1]
// with (0,0) at the bottom-left corner and y growing upward. Only the
// execution layer sees physical millimetres. Out-of-range input is never
// rejected: every coordinate is clamped into the canvas and the clamp is
// reported as a BoundsError warning so callers can surface it.
//
// The Grid type provides an N x N overlay used when rendering memory for
// the oracle. It is a presentation aid and never changes stored geometry.
package coords
