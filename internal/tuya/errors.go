package tuya

import "errors"

// Domain errors for the Tuya cloud layer.
var (
	// ErrNotConfigured is returned when the cloud account fields required
	// for login are missing. No network call is attempted.
	ErrNotConfigured = errors.New("tuya: cloud account not configured")

	// ErrAuth is returned when the platform rejects the account credentials
	// or an access token.
	ErrAuth = errors.New("tuya: authentication failed")

	// ErrNotAuthenticated is returned when a signed call is attempted
	// without a valid access token.
	ErrNotAuthenticated = errors.New("tuya: no valid session")

	// ErrTransport is returned for non-success HTTP status, transport-level
	// failures, or a platform response with success=false.
	ErrTransport = errors.New("tuya: request failed")

	// ErrRealtime is returned for push channel connect and subscribe failures.
	ErrRealtime = errors.New("tuya: realtime channel failure")

	// ErrDecrypt is returned when a realtime envelope cannot be decrypted.
	ErrDecrypt = errors.New("tuya: envelope decrypt failed")

	// ErrEnvelope is returned when a realtime envelope is malformed.
	ErrEnvelope = errors.New("tuya: malformed envelope")

	// ErrUnsupported is returned when a command names a capability or mode
	// the device does not expose.
	ErrUnsupported = errors.New("tuya: unsupported capability")
)
