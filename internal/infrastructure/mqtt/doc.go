// Package mqtt provides MQTT connectivity for node status reporting.
//
// The sensor node publishes a retained status document for itself; the
// collector subscribes to every node's status and relays it to dashboard
// clients. Readings themselves never travel over MQTT.
//
//	thermolink node ─► broker ─► thermocollector
//	  thermolink/status/{node_id} (retained, LWT offline)
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on the local host
//   - Supply credentials through THERMOLINK_MQTT_USERNAME/PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.NodeStatus(cfg.Node.ID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
