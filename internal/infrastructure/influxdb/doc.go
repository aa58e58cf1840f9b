// Package influxdb provides read-only InfluxDB connectivity for Trazo Core.
//
// It wraps the official influxdb-client-go v2 library with Trazo-specific
// patterns for connection management, telemetry queries, and health monitoring.
//
// # Purpose
//
// Trazo Core never persists telemetry. Measured environmental values are
// written to InfluxDB by the sensor ingest pipeline outside this system;
// this package only reads them back so the arbitration engine can gate
// same-source setpoint publications on deadband deviation.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "trazo",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Last measured temperature for a pod
//	v, err := client.LastValue(ctx, "pod:pod-a", "temperature")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Query errors are returned directly. ErrNoData distinguishes "no recent
// reading" from a transport failure, so callers can treat a silent sensor
// as an open deadband gate rather than an outage.
package influxdb
