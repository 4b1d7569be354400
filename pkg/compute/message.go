// Package compute runs embedding inference in a worker goroutine and lets
// any number of callers wait on it concurrently.
//
// The Client and the Worker share nothing but a Conn. Every embed request
// carries an id; responses may come back in any order and are matched to
// their caller by that id. Model loading is reported on a separate status
// channel that is not tied to any request.
package compute

// MessageType identifies a wire message.
type MessageType string

// Requester to worker.
const (
	TypeLoad  MessageType = "load"
	TypeEmbed MessageType = "embed"
)

// Worker to requester.
const (
	TypeProgress  MessageType = "progress"
	TypeReady     MessageType = "ready"
	TypeResult    MessageType = "result"
	TypeError     MessageType = "error"
	TypeLoadError MessageType = "load-error"
)

// Message is the single envelope exchanged over a Conn. Only the fields
// relevant to Type are set.
type Message struct {
	Type     MessageType `json:"type"`
	ID       string      `json:"id,omitempty"`
	ModelID  string      `json:"modelId,omitempty"`
	Model    string      `json:"model,omitempty"`
	Text     string      `json:"text,omitempty"`
	Vector   []float32   `json:"vector,omitempty"`
	Progress float64     `json:"progress,omitempty"` // percent, 0-100
	Message  string      `json:"message,omitempty"`
}
