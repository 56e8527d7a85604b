// Package repositories provides the SQLite persistence layer for the feed amalgamator.
//
// Each repository owns one table and uses explicit SQL. Rows get a generated UUID and a
// per-table sequence number (see [NextSequence]).
//
// Lookups that find nothing return [shared.ErrNotFound]. Inserts that hit a unique
// constraint return [shared.ErrDuplicate] so callers can map them to integrity errors.
package repositories
