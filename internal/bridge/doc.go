// Package bridge orchestrates the Tuya cloud bridge.
//
// It owns the full pipeline between the Tuya cloud platform and the local
// Gray Logic MQTT broker:
//
//   - Commands arrive from Core on graylogic/command/tuya/{device_id},
//     are translated into platform function codes, and sent through the
//     signed cloud API.
//   - Realtime status batches arrive on the encrypted push channel, are
//     translated into normalized attribute events, and published on
//     graylogic/state/tuya/{device_id}.
//   - Device lifecycle events (rename, online/offline, bind, delete) keep
//     the local device registry in sync with the account.
//   - Health status is published periodically so Core can monitor the
//     bridge like any other protocol bridge.
//
// The bridge holds no protocol knowledge of its own; translation lives in
// the tuya package, persistence in the store package.
package bridge
