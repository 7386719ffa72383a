package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// telemetryMeasurement is the measurement every mirrored document lands in.
const telemetryMeasurement = "device_telemetry"

// WriteTelemetry mirrors one published document. kind distinguishes live
// readings from periodic snapshots. Only numeric and boolean top-level
// fields are written; documents without any are skipped.
func (c *Client) WriteTelemetry(deviceID, kind string, doc map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := TelemetryFields(doc)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		telemetryMeasurement,
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// TelemetryFields extracts the fields InfluxDB can store from a document.
// JSON numbers decode as float64; integer types are accepted for documents
// built in-process. Nested values and strings are ignored.
func TelemetryFields(doc map[string]any) map[string]any {
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "device_id" {
			continue
		}
		switch val := v.(type) {
		case float64, float32, bool:
			fields[k] = val
		case int:
			fields[k] = int64(val)
		case int32:
			fields[k] = int64(val)
		case int64:
			fields[k] = val
		case uint32:
			fields[k] = int64(val)
		case uint64:
			fields[k] = int64(val) //nolint:gosec // counters stay far below 2^63
		}
	}
	return fields
}
