// Package memory implements the per-session spatial ledger of everything
// drawn so far.
//
// A Memory holds an ordered list of strokes, the anchors derived from each
// label group, an optional multi-stage Plan and an optional pending
// clarifying question. Stroke ids are assigned sequentially and never
// reused. Every stored point lies inside the normalized canvas because
// ingestion clamps through the coords package.
//
// Strokes enter as either preview or confirmed. Preview strokes are never
// handed to the arm; ConfirmPreviewStrokes promotes them and
// RejectPreviewStrokes discards them together with their anchors. Both are
// no-ops on an empty preview set.
//
// Summary returns a complete Snapshot. Nothing is elided regardless of
// drawing size, since the oracle reasons about positions it cannot see.
package memory
