package influxdb

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/commlink/internal/message"
)

// fakeWriter captures points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeWriter) recorded() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

func (f *fakeWriter) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.points))
	for i, p := range f.points {
		out[i] = strings.TrimSpace(write.PointToLineProtocol(p, time.Millisecond))
	}
	return out
}

func newTestRecorder() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writer: w, connected: true}, w
}

func TestRecordFeedback(t *testing.T) {
	tests := []struct {
		name string
		in   message.Feedback
		want string // empty means skipped
	}{
		{"float", message.Feedback{ID: "slider1", Value: float64(42), Timestamp: 1700000000000},
			"control_feedback,id=slider1 value=42 1700000000000"},
		{"bool", message.Feedback{ID: "t1", Value: true, Timestamp: 5},
			"control_feedback,id=t1 value=true 5"},
		{"int widened", message.Feedback{ID: "n1", Value: 7, Timestamp: 5},
			"control_feedback,id=n1 value=7 5"},
		{"json number", message.Feedback{ID: "n2", Value: json.Number("2.5"), Timestamp: 5},
			"control_feedback,id=n2 value=2.5 5"},
		{"string skipped", message.Feedback{ID: "x", Value: "on", Timestamp: 5}, ""},
		{"object skipped", message.Feedback{ID: "x", Value: map[string]any{"r": 1}, Timestamp: 5}, ""},
		{"nil skipped", message.Feedback{ID: "x", Timestamp: 5}, ""},
		{"empty id skipped", message.Feedback{Value: float64(1), Timestamp: 5}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestRecorder()
			c.RecordFeedback(tt.in)

			lines := w.lines()
			if tt.want == "" {
				if len(lines) != 0 {
					t.Errorf("wrote %v, want nothing", lines)
				}
				return
			}
			if len(lines) != 1 || lines[0] != tt.want {
				t.Errorf("wrote %v, want [%s]", lines, tt.want)
			}
		})
	}
}

func TestRecordStatus(t *testing.T) {
	c, w := newTestRecorder()

	c.RecordStatus(message.StatusUpdate{Path: "device/pump1", Value: float64(1.5), Timestamp: 10})
	c.RecordStatus(message.StatusUpdate{Path: "device/pump1", Value: "running", Timestamp: 11})

	lines := w.lines()
	if len(lines) != 1 || lines[0] != "control_status,path=device/pump1 value=1.5 10" {
		t.Errorf("wrote %v", lines)
	}
}

func TestRecordConnection(t *testing.T) {
	c, w := newTestRecorder()

	c.RecordConnection(true, false, time.UnixMilli(20))

	points := w.recorded()
	if len(points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(points))
	}
	p := points[0]

	if p.Name() != MeasurementConnection {
		t.Errorf("measurement = %q, want %q", p.Name(), MeasurementConnection)
	}
	if len(p.TagList()) != 0 {
		t.Errorf("tags = %v, want none", p.TagList())
	}
	if !p.Time().Equal(time.UnixMilli(20)) {
		t.Errorf("time = %v, want 20ms", p.Time())
	}

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	want := map[string]any{"websocket": true, "mqtt": false, "full": false}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v, want %v", k, fields[k], v)
		}
	}
}

func TestRecordAfterClose(t *testing.T) {
	c, w := newTestRecorder()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d on Close, want 1", w.flushes)
	}

	c.RecordFeedback(message.Feedback{ID: "a", Value: float64(1), Timestamp: 1})
	c.Flush()

	if len(w.lines()) != 0 {
		t.Error("point written after Close")
	}
	if w.flushes != 1 {
		t.Errorf("Flush after Close reached the writer")
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}
