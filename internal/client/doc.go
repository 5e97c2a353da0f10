// Package client is a typed client for the sketchd HTTP API. It is used by
// sketchctl and the monitor dashboard.
package client
