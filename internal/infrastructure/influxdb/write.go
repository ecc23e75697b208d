package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by TrackerLink Core.
const (
	MeasurementPairingFlows         = "pairing_flows"
	MeasurementDiscoveryRegistry    = "discovery_registry"
	MeasurementDiscoverySubmissions = "discovery_submissions"
)

// WritePairingFlow records one finished pairing flow.
//
// Parameters:
//   - outcome: "completed" or "aborted"
//   - reason: abort reason, empty for completed flows
//   - bound: whether the flow was launched for a specific discovery
//   - duration: time from flow start to its terminal state
func (c *Client) WritePairingFlow(outcome, reason string, bound bool, duration time.Duration) {
	tags := map[string]string{
		"outcome": outcome,
		"bound":   boolTag(bound),
	}
	if reason != "" {
		tags["reason"] = reason
	}
	c.WritePoint(MeasurementPairingFlows, tags, map[string]any{
		"duration_ms": duration.Milliseconds(),
	})
}

// WriteRegistrySize records how many descriptors are pending review.
func (c *Client) WriteRegistrySize(pending int) {
	c.WritePoint(MeasurementDiscoveryRegistry, nil, map[string]any{
		"pending": pending,
	})
}

// WriteSubmission records one discovery submission.
//
// result is "accepted", "rejected" or "invalid".
func (c *Client) WriteSubmission(result, source string) {
	c.WritePoint(MeasurementDiscoverySubmissions,
		map[string]string{"result": result, "source": source},
		map[string]any{"count": 1},
	)
}

// WritePoint writes a point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("pairing_flows",
//	    map[string]string{"outcome": "completed"},
//	    map[string]any{"duration_ms": 5300})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
