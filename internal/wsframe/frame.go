// Package wsframe defines the JSON frames exchanged over the persistent
// websocket channel. Each request carries a unique ID; the matching response
// echoes it so many requests can be in flight on one connection.
package wsframe

import "encoding/json"

// RequestFrame is a client-to-server request multiplexed over the socket.
type RequestFrame struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// ResponseFrame is the server's reply to a RequestFrame with the same ID.
// Status mirrors HTTP status codes; Body is the raw JSON payload.
type ResponseFrame struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`
}
