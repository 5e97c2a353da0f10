// Package store persists drawing sessions.
//
// A session is saved as a Record holding the full memory snapshot. Two
// backends exist: FileStore writes one JSON document per session and
// PostgresStore keeps records in a jsonb column. Both are selected through
// the store section of the configuration.
package store
