// Package config loads and validates the bridge configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// GRAYLOGIC_TUYA_* environment variables. Secrets (cloud access key, app
// account password, broker password) are expected to arrive via the
// environment in production deployments.
package config
