// Package store persists bridge state in SQLite: the cloud session, so
// tokens survive a restart without re-authenticating, and the last-known
// device snapshots, so state can be served before the first cloud refresh
// completes.
//
// Store satisfies the tuya.SessionStore interface and is the single
// owner of the cloud_session and devices tables.
package store
