package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrad567/commlink/internal/communication"
	"github.com/nerrad567/commlink/internal/message"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Connection  communication.ConnectionStatus `json:"connection"`
	LastMessage *message.Message               `json:"last_message,omitempty"`
	HistorySize int                            `json:"history_size"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Messages []message.Message `json:"messages"`
	Count    int               `json:"count"`
}

// SendControlRequest is the body of POST /controls.
type SendControlRequest struct {
	Component message.Component `json:"component"`
	ID        string            `json:"id"`
	Value     any               `json:"value"`
}

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// handleStatus returns aggregate connection status and the last inbound message.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Connection:  s.coord.Status(),
		HistorySize: len(s.coord.History()),
	}
	if last, ok := s.coord.LastMessage(); ok {
		resp.LastMessage = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetHistory returns message history, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, _ *http.Request) {
	msgs := s.coord.History()
	if msgs == nil {
		msgs = []message.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Messages: msgs, Count: len(msgs)})
}

// handleClearHistory empties message history.
func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.coord.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// handleSendControl sends a control change on both channels.
// Responds 202 because delivery is asynchronous; a down channel queues or drops.
func (s *Server) handleSendControl(w http.ResponseWriter, r *http.Request) {
	var req SendControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeValidationError(w, "id is required")
		return
	}
	if !message.ValidID(req.ID) {
		writeValidationError(w, "id must not contain '/', '+' or '#'")
		return
	}
	if !req.Component.Valid() {
		writeValidationError(w, "unknown component: "+string(req.Component))
		return
	}

	msg := s.coord.SendControl(req.Component, req.ID, req.Value)
	writeJSON(w, http.StatusAccepted, msg)
}

// handlePublish publishes an arbitrary payload on the pub/sub channel.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeValidationError(w, "topic is required")
		return
	}
	if strings.ContainsAny(req.Topic, "+#") {
		writeValidationError(w, "topic must not contain wildcards")
		return
	}

	s.coord.Publish(req.Topic, req.Payload)
	writeJSON(w, http.StatusAccepted, map[string]string{"topic": req.Topic})
}
