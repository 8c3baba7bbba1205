// Package influxdb writes the node's pipeline counters to InfluxDB.
//
// Only operational counters are stored (samples taken, drops, send errors,
// reconnects, queue depth). Temperature readings are not persisted.
//
// A client is bound to one node: its id is applied as the node_id tag on
// every point.
//
// Writes are non-blocking and batched by the client library; failures are
// reported asynchronously through SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Node.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // optional component
//	}
//	defer client.Close()
package influxdb
