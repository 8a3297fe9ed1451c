// Package influxdb records commlink control telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Purpose
//
// Feedback and status values observed on the pub/sub channel are written
// as time series so control history can be graphed:
//   - control_feedback: one series per control ID
//   - control_status: one series per status path
//   - connection_status: transport up/down over time
//
// Only numeric and boolean values are stored.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	coord.Events().OnFeedback(client.RecordFeedback)
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered via SetOnError.
// Connection and health check errors are returned directly.
package influxdb
