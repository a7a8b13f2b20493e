/*
Package server implements msgpack IPC for the ghost-text completion backend.

Messages are msgpack maps streamed over a reader/writer pair, usually the
stdin/stdout of a ghostserve process. Every message carries an ID that the
response echoes, so a client may keep several requests in flight:

	{"id": "9f1c...", "m": "complete", "q": {"uri": "file:///a.go", "pos": {...}, "off": 12, "text": "..."}}
	{"id": "9f1c...", "s": [{"id": "c1", "insert": "quickSort", "display": "ckSort", ...}], "c": 1, "t": 85}

Feedback uses the candidate IDs of earlier responses:

	{"id": "...", "m": "accept", "a": "c1"}
	{"id": "...", "m": "reject", "r": ["c2", "c3"]}

The server first writes {"status": "ready"} with an empty ID. Failures come
back as an error string with an HTTP-like code: 400 for malformed input,
404 for unknown candidates, 429 when rate limited, 500 for backend errors
and 504 when the backend outlives the request timeout.
*/
package server

import (
	"context"
	"fmt"

	"github.com/bastiangx/ghostserve/pkg/ghost"
)

// Methods understood by the server.
const (
	MethodComplete = "complete"
	MethodAccept   = "accept"
	MethodReject   = "reject"
	MethodHealth   = "health"
)

// Status values.
const (
	StatusReady = "ready"
	StatusOK    = "ok"
)

// Error codes.
const (
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeRateLimited = 429
	CodeInternal    = 500
	CodeTimeout     = 504
)

// Message is one client request.
type Message struct {
	ID       string         `msgpack:"id"`
	Method   string         `msgpack:"m"`
	Complete *ghost.Request `msgpack:"q,omitempty"`
	Accept   string         `msgpack:"a,omitempty"`
	Reject   []string       `msgpack:"r,omitempty"`
}

// Response answers one Message.
type Response struct {
	ID        string            `msgpack:"id"`
	Items     []ghost.Candidate `msgpack:"s,omitempty"`
	Count     int               `msgpack:"c,omitempty"`
	TimeTaken int64             `msgpack:"t,omitempty"`
	Status    string            `msgpack:"status,omitempty"`
	Stats     map[string]int    `msgpack:"stats,omitempty"`
	Error     string            `msgpack:"e,omitempty"`
	Code      int               `msgpack:"code,omitempty"`
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Unwrap lets a server-side timeout match context.DeadlineExceeded, so
// callers treat it like their own deadline.
func (e *RemoteError) Unwrap() error {
	if e.Code == CodeTimeout {
		return context.DeadlineExceeded
	}
	return nil
}
