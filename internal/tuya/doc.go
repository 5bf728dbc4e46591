// Package tuya implements the cloud protocol layer for the Tuya IoT platform.
//
// It covers five concerns:
//
//   - Request signing and session lifecycle (sign.go, session.go): HMAC-SHA256
//     request signatures, the authorized-login token exchange, proactive
//     refresh scheduling and jittered retry.
//   - The request pipeline (client.go): signed REST calls with a fixed
//     per-request timeout, cursor-paginated device listing, specification and
//     status fetches, and command submission.
//   - The capability catalog (catalog.go): per-device value domains learned
//     from the specification call, memoized by the serialized capability map
//     so devices of the same model share one parsed table.
//   - Bidirectional translation (command.go, status.go): normalized
//     capability commands into vendor function codes with domain-scaled
//     values, and raw status batches into normalized attribute events.
//   - The realtime transport (realtime.go, crypto.go): the encrypted push
//     channel, its AES-ECB envelope decryption, and reconnect with jitter.
//
// The package never touches the local MQTT bus or any persistence directly;
// the bridge package wires those in through small interfaces. Reconnect
// retries on the push channel are deliberately unbounded: the bridge must
// always converge back to a live subscription, however long the outage.
package tuya
