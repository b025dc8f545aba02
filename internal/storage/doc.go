// Package storage persists scheduled reminder tasks.
//
// It is pure persistence: no timers, no delivery. Two database/sql drivers
// are supported, sqlite (modernc.org/sqlite, the default) and postgres
// (lib/pq). Not-found is reported through ok/bool results, never as an error.
package storage
