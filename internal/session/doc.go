// Package session owns drawing sessions. Each session has its own memory
// and controller; the Manager keeps a bounded set active and persists the
// rest through a store.Store.
package session
