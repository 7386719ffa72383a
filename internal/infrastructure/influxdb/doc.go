// Package influxdb mirrors device telemetry into InfluxDB.
//
// When enabled, every document the telemetry publisher sends is also
// written as a point in the "device_telemetry" measurement, tagged with the
// device id and the document kind (live or snapshot). Only numeric and
// boolean fields are mirrored.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("dev-123", "snapshot", map[string]any{"temperature": 21.5})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
package influxdb
