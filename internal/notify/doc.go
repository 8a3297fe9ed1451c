// Package notify defines the user-facing notification capability used by
// the transport clients. Presentation is external: implementations decide
// how a Notification reaches the user (log line, UI toast over the API
// event stream, ...).
package notify
