// Package influxdb provides InfluxDB connectivity for TrackerLink Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//	pairing_flows          tags outcome, reason, bound; field duration_ms
//	discovery_registry     field pending
//	discovery_submissions  tags result, source; field count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePairingFlow("completed", "", true, elapsed)
package influxdb
