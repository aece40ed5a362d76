// Package mqtt provides MQTT client connectivity for the Lutron gateway.
//
// The client connects once, lets paho reconnect with backoff, restores the
// command subscription after each reconnect and keeps a retained
// online/offline record on the system status topic, with the offline record
// doubling as the last will.
//
// # Architecture
//
// MQTT is the hub side of the gateway. Bridge envelopes go out as events,
// commands come back in, and every command is answered on an ack topic:
//
//	Lutron bridges ↔ Gateway engines ↔ MQTT Broker ↔ Hub
//
// Topic tree (prefix "lutron" by default):
//
//	lutron/event/{bridge}/{type}      envelopes, QoS 1, not retained
//	lutron/state/{bridge}/zone/{n}    last zone level, retained
//	lutron/command/{bridge}/{op}      commands from the hub
//	lutron/ack/{bridge}/{id}          command results
//	lutron/health/{bridge}            bridge summaries, retained
//	lutron/system/status              gateway online/offline (LWT)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Anyone who can publish to the command tree can switch loads
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        bridgeID, op, _ := topics.ParseCommand(topic)
//	        log.Printf("%s %s: %s", bridgeID, op, payload)
//	        return nil
//	    })
package mqtt
