// Package validator scores candidate geometry against spatial
// common-sense rules before it is committed to memory.
//
// Candidate strokes are grouped by label into components and checked for:
//
//   - overlap: bounding-box IoU between candidate components, and between
//     candidates and already confirmed components
//   - spacing: the gap implied by phrases like "next to" or "far from",
//     as decided by a pluggable SpacingClassifier
//   - ratio: implausible size ratios between candidate components
//   - symmetry: left/right style pairs of similar size, side by side and
//     vertically aligned
//   - size: components that are nearly invisible or fill the canvas
//
// The score starts at 1.0 and loses a fixed penalty per error and per
// warning. A candidate is valid only with no errors and a score at or
// above the threshold. Validation never mutates the snapshot it reads.
package validator
