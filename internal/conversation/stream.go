package conversation

import "context"

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry in the backend-facing history projection.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one element of a response stream. A chunk with Done set
// is the terminal element for the turn; Err is only ever set on a
// terminal chunk.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// StreamChannel is a live connection to the text-generation backend for
// one conversation. Send may be called once per turn; fragments arrive
// in order and the sequence terminates exactly once per Send. Close
// discards the channel: fragments still in flight after Close must not
// be delivered.
type StreamChannel interface {
	Send(ctx context.Context, userText string) (<-chan StreamChunk, error)
	Close() error
}

// Streamer opens stream channels seeded with a system instruction and
// any prior history. One channel is opened per session and reused for
// every turn, so the backend keeps conversational context itself.
type Streamer interface {
	Open(ctx context.Context, systemInstruction string, history []ChatMessage) (StreamChannel, error)
}
