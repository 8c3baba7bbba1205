package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	// MeasurementPipeline holds node pipeline counters.
	MeasurementPipeline = "thermolink_pipeline"

	// TagNodeID identifies the node a point came from.
	TagNodeID = "node_id"
)

// WritePipeline records one snapshot of the node's pipeline counters.
// The write is non-blocking and batched; points written while
// disconnected are dropped.
//
//	client.WritePipeline(map[string]any{"sampled": 120, "dropped": 0})
func (c *Client) WritePipeline(fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementPipeline, nil, fields, time.Now()))
}
