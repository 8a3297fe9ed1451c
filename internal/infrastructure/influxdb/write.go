package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/commlink/internal/message"
)

// Measurement names.
const (
	MeasurementFeedback   = "control_feedback"
	MeasurementStatus     = "control_status"
	MeasurementConnection = "connection_status"
)

// RecordFeedback writes a feedback value tagged by control ID.
// Only numeric and boolean values are recorded; anything else is skipped.
//
// Example point:
//
//	control_feedback,id=slider1 value=42 1700000000000
func (c *Client) RecordFeedback(f message.Feedback) {
	point, ok := feedbackPoint(f)
	if !ok {
		return
	}
	c.writePoint(point)
}

// RecordStatus writes a status value tagged by its topic path.
// Only numeric and boolean values are recorded; anything else is skipped.
func (c *Client) RecordStatus(s message.StatusUpdate) {
	point, ok := statusPoint(s)
	if !ok {
		return
	}
	c.writePoint(point)
}

// RecordConnection writes the up/down state of both transports.
func (c *Client) RecordConnection(websocket, mqtt bool, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementConnection,
		nil,
		map[string]interface{}{
			"websocket": websocket,
			"mqtt":      mqtt,
			"full":      websocket && mqtt,
		},
		at,
	))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}

func feedbackPoint(f message.Feedback) (*write.Point, bool) {
	v, ok := fieldValue(f.Value)
	if !ok || f.ID == "" {
		return nil, false
	}
	return write.NewPoint(
		MeasurementFeedback,
		map[string]string{"id": f.ID},
		map[string]interface{}{"value": v},
		time.UnixMilli(f.Timestamp),
	), true
}

func statusPoint(s message.StatusUpdate) (*write.Point, bool) {
	v, ok := fieldValue(s.Value)
	if !ok || s.Path == "" {
		return nil, false
	}
	return write.NewPoint(
		MeasurementStatus,
		map[string]string{"path": s.Path},
		map[string]interface{}{"value": v},
		time.UnixMilli(s.Timestamp),
	), true
}

// fieldValue normalises a decoded JSON value to an InfluxDB field.
// Numbers become float64 so a series never mixes integer and float types.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		return x, true
	default:
		return nil, false
	}
}
