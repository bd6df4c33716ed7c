// Package ingest writes signature catalogs into the connected similarity store.
//
// Programs are written concurrently by a bounded worker pool. Each program is
// written in its own transaction when the store supports one. A function that
// fails validation or storage is recorded in the statistics and the rest of
// the program continues, so one bad signature never discards a catalog.
//
// Only one ingest runs at a time; a concurrent call fails with
// ErrIngestInProgress.
package ingest
