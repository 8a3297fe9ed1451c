package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Stream        StreamMetrics  `json:"stream"`
	Channels      ChannelMetrics `json:"channels"`
	History       HistoryMetrics `json:"history"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// StreamMetrics contains event stream hub statistics.
type StreamMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ChannelMetrics contains transport connection state.
type ChannelMetrics struct {
	WebSocket      bool   `json:"websocket"`
	MQTT           bool   `json:"mqtt"`
	WebSocketState string `json:"websocket_state"`
	MQTTState      string `json:"mqtt_state"`
}

// HistoryMetrics contains message history statistics.
type HistoryMetrics struct {
	Size int `json:"size"`
}

// handleMetrics returns runtime, stream and channel metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := s.coord.Status()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Stream: StreamMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Channels: ChannelMetrics{
			WebSocket:      status.WebSocket,
			MQTT:           status.MQTT,
			WebSocketState: status.WebSocketState.String(),
			MQTTState:      status.MQTTState.String(),
		},
		History: HistoryMetrics{
			Size: len(s.coord.History()),
		},
	}

	writeJSON(w, http.StatusOK, metrics)
}
