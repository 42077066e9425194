package conversation

import (
	"time"

	"github.com/google/uuid"
)

// State is the session's position in the triage/booking flow. Exactly one
// state is active at any time.
type State int

const (
	StateIdle State = iota
	StateChatting
	StateAwaitingPayment
	StateBookingConfirmed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChatting:
		return "chatting"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateBookingConfirmed:
		return "booking_confirmed"
	default:
		return "unknown"
	}
}

// Sender identifies who produced a transcript message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// MessageOption is a user-triggerable follow-up attached to a finalized
// message. Triggering one submits Payload as the next user turn.
type MessageOption struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Message is one transcript entry. While an assistant message is
// streaming, Text is a monotonically growing prefix of the final text and
// IsStreaming is true; it is flipped to false exactly once.
type Message struct {
	ID          string          `json:"id"`
	Sender      Sender          `json:"sender"`
	Text        string          `json:"text"`
	IsStreaming bool            `json:"isStreaming,omitempty"`
	Options     []MessageOption `json:"options,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Session is one conversation lifetime. It is owned and mutated solely by
// its Controller; the transcript is append-only except for the last
// assistant message while it streams.
type Session struct {
	ID             string
	State          State
	Transcript     []Message
	PendingDetails *BookingDetails
	CreatedAt      time.Time

	// history is the private backend projection of the transcript: user
	// and assistant turns only, never system notices.
	history []ChatMessage
}

// NewSession returns an idle session with an empty transcript.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		State:     StateIdle,
		CreatedAt: time.Now().UTC(),
	}
}

// History returns a copy of the backend history projection.
func (s *Session) History() []ChatMessage {
	out := make([]ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) appendMessage(sender Sender, text string, streaming bool) *Message {
	s.Transcript = append(s.Transcript, Message{
		ID:          uuid.NewString(),
		Sender:      sender,
		Text:        text,
		IsStreaming: streaming,
		Timestamp:   time.Now().UTC(),
	})
	return &s.Transcript[len(s.Transcript)-1]
}

func (s *Session) appendUser(text string) *Message {
	s.history = append(s.history, ChatMessage{Role: ChatRoleUser, Content: text})
	return s.appendMessage(SenderUser, text, false)
}

func (s *Session) appendAssistant(text string) *Message {
	s.history = append(s.history, ChatMessage{Role: ChatRoleAssistant, Content: text})
	return s.appendMessage(SenderAssistant, text, false)
}

// appendStreamingPlaceholder adds the empty assistant message that will
// accumulate fragments for the in-flight turn.
func (s *Session) appendStreamingPlaceholder() *Message {
	return s.appendMessage(SenderAssistant, "", true)
}

func (s *Session) appendSystemNotice(text string) *Message {
	return s.appendMessage(SenderSystem, text, false)
}

// find returns the transcript message with the given id, or nil.
func (s *Session) find(id string) *Message {
	for i := range s.Transcript {
		if s.Transcript[i].ID == id {
			return &s.Transcript[i]
		}
	}
	return nil
}

// appendFragment grows the streaming message's text in place.
func (s *Session) appendFragment(id, fragment string) {
	if msg := s.find(id); msg != nil && msg.IsStreaming {
		msg.Text += fragment
	}
}

// finalize replaces the streaming message's text with its terminal value,
// clears the streaming flag, and records the assistant turn in the
// backend history. historyText preserves what the backend actually said
// when the visible text was replaced (e.g. a booking confirmation); when
// empty, the visible text is recorded.
func (s *Session) finalize(id, text, historyText string) {
	msg := s.find(id)
	if msg == nil || !msg.IsStreaming {
		return
	}
	msg.Text = text
	msg.IsStreaming = false
	if historyText == "" {
		historyText = text
	}
	s.history = append(s.history, ChatMessage{Role: ChatRoleAssistant, Content: historyText})
}

// snapshot returns a copy of the transcript safe for observers.
func (s *Session) snapshot() []Message {
	out := make([]Message, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}
