// Package store persists lattice-dynamics results in SQLite.
//
// The Store models a small document database: JSON documents grouped into
// named collections, content-addressed blobs for large phonon payloads, and
// named counters that hand out monotonically increasing identifiers with a
// single atomic upsert. Concurrent pipeline runs may share one database file;
// WAL mode and busy retries keep them from tripping over each other.
//
// Schema changes bump schemaVersion in schema.go; existing databases with an
// older version are rejected rather than migrated.
package store
