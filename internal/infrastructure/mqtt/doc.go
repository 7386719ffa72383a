// Package mqtt provides the publish/subscribe transport for the device session.
//
// This package manages:
//   - Connecting to the broker with a per-device client id, credentials and LWT
//   - Publishing with bounded wait on the broker acknowledgement
//   - Subscribing with every message routed to a single handler
//   - The device topic layout under a deployment base prefix
//
// Reconnection is deliberately left to the caller. The session manager polls
// IsConnected from the lifecycle loop and rebuilds the connection (including
// subscriptions and the presence record) when it has dropped.
//
// # Usage
//
//	client := mqtt.NewClient()
//	err := client.Connect(mqtt.ConnectOptions{
//	    Host:      "broker.local",
//	    Port:      1883,
//	    ClientID:  "automata-greenhouse_sensor-aabbccddeeff",
//	    OnMessage: func(topic string, payload []byte) { inbox <- ... },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	topics := mqtt.Topics{Base: "automata"}
//	err = client.Subscribe(topics.ActionFor("dev-123"), 1)
package mqtt
