// Package config handles loading and validating Thermolink configuration.
//
// Both binaries share one Config structure:
//   - the sensor node reads node, sensor, queue, collector, network, mqtt,
//     influxdb, status and logging
//   - the collector reads server, mqtt and logging
//
// Durations are written as Go duration strings ("500ms", "5s").
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The link to the collector is plain TCP; keep it on a trusted network
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ValidateNode(); err != nil {
//	    log.Fatal(err)
//	}
package config
