// Package controller runs the incremental drawing loop for one session.
//
// An instruction goes through at most repair_budget+1 generations per
// stage. Each generation is validated against the session's memory; a
// valid candidate commits at once, otherwise the issues are sent back to
// the oracle as a repair request. When the budget is spent the
// best-scoring candidate commits anyway, so Process always terminates.
//
// A committed stage that reports components_remaining chains into the
// next component without user input, bounded by plan.max_chain.
package controller
