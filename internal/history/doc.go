// Package history records normalized device events in InfluxDB.
//
// Every attribute event the bridge translates — level changes, sensor
// readings, switch toggles — is written as a time-series point, giving the
// wider Gray Logic installation a queryable history of cloud device
// behaviour alongside its other telemetry.
//
// Recording is optional: when disabled in configuration the bridge runs
// without it, and all writers degrade to no-ops when the connection is
// down. Writes are non-blocking and batched by the underlying client.
package history
