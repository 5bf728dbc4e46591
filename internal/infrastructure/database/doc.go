// Package database manages the bridge's SQLite store.
//
// The schema is deliberately tiny: a single-row cloud session table and a
// device snapshot table. Both are repositories of convenience, not sources
// of truth - the cloud is always authoritative and every row is rewritable
// from a full refresh.
package database
