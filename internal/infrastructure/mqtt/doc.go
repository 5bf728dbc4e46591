// Package mqtt provides connectivity to the local Gray Logic broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the bridge health topic
//
// # Architecture
//
// Gray Logic uses MQTT as the internal message bus connecting the Core to
// protocol bridges. This bridge sits between two MQTT worlds: the vendor
// cloud's realtime channel (handled in internal/tuya) and the local bus
// (handled here). The two connections are independent; losing one does not
// tear down the other.
//
//	Vendor Cloud ↔ internal/tuya ↔ bridge ↔ local broker ↔ Gray Logic Core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.CommandPattern(), 1,
//	    func(topic string, payload []byte) error {
//	        // handle command
//	        return nil
//	    })
package mqtt
