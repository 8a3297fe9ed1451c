// Package message defines the control/telemetry Message exchanged on the
// generic channel, plus the decoded pub/sub event payloads.
//
// Messages are JSON encoded, one per WebSocket frame:
//
//	{"type":"control","component":"slider","id":"s1","value":75,"timestamp":1700000000000}
//
// The timestamp is epoch milliseconds assigned by the sender.
package message
