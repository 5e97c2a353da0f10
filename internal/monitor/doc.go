// Package monitor is a terminal dashboard that follows one drawing session.
// It polls the sketchd HTTP API and renders the canvas, plan progress and
// stroke history.
package monitor
