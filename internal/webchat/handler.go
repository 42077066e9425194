package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/mediconnect/mediconnect-ai/internal/appointments"
	"github.com/mediconnect/mediconnect-ai/internal/conversation"
	"github.com/mediconnect/mediconnect-ai/internal/payments"
	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

// ControllerFactory builds a fresh conversation controller per
// connection. The handler attaches its own transcript sink before
// initializing.
type ControllerFactory func() *conversation.Controller

// Handler exposes the chat over WebSocket plus small HTTP fallbacks.
// Each WebSocket connection owns exactly one conversation controller for
// its lifetime.
type Handler struct {
	factory ControllerFactory
	history conversation.TranscriptStore
	logger  *logging.Logger
}

// InboundFrame is what the widget sends.
type InboundFrame struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundFrame is what we send to the widget. Transcript frames carry a
// full snapshot; the widget rerenders rather than patching. State frames
// follow every transition, payment frames carry the terminal outcome of
// a payment attempt, and a booked frame delivers the appointment record.
type OutboundFrame struct {
	Type        string                    `json:"type"` // "session", "transcript", "state", "payment", "booked", "error", "pong"
	SessionID   string                    `json:"session_id,omitempty"`
	State       string                    `json:"state,omitempty"`
	Result      string                    `json:"result,omitempty"` // payment frames: "succeeded" or "failed"
	Reason      string                    `json:"reason,omitempty"`
	Messages    []conversation.Message    `json:"messages,omitempty"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
	Text        string                    `json:"text,omitempty"`
}

// NewHandler creates a web chat handler.
func NewHandler(factory ControllerFactory, history conversation.TranscriptStore, logger *logging.Logger) *Handler {
	if factory == nil {
		panic("webchat: controller factory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		factory: factory,
		history: history,
		logger:  logger,
	}
}

// wsClient serializes sends to one connection; the payment goroutine
// publishes concurrently with the read loop.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(frame OutboundFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = websocket.JSON.Send(c.conn, frame)
}

// HandleWebSocket upgrades to WebSocket and runs the chat session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	client := &wsClient{conn: conn}

	ctrl := h.factory()
	sessionID := ctrl.SessionID()
	ctrl.WithSink(sinkFunc(func(id string, transcript []conversation.Message) {
		client.send(OutboundFrame{Type: "transcript", SessionID: id, Messages: transcript})
	})).WithOnStateChange(func(state conversation.State) {
		client.send(OutboundFrame{Type: "state", SessionID: sessionID, State: state.String()})
	}).WithOnPaymentResolved(func(outcome payments.Outcome) {
		frame := OutboundFrame{Type: "payment", SessionID: sessionID, Result: "failed", Reason: outcome.Reason}
		if outcome.Succeeded {
			frame.Result = "succeeded"
			frame.Reason = ""
		}
		client.send(frame)
	}).WithOnBooked(func(appt appointments.Appointment) {
		client.send(OutboundFrame{Type: "booked", SessionID: sessionID, Appointment: &appt})
	})

	// Turns run off the read loop; Close unblocks any stalled stream
	// before we wait them out.
	var turns sync.WaitGroup
	defer func() {
		if err := ctrl.Close(); err != nil {
			h.logger.Debug("webchat: controller close", "error", err)
		}
		turns.Wait()
	}()

	client.send(OutboundFrame{Type: "session", SessionID: sessionID})

	ctrl.Initialize(r.Context(), priorDetails(r))

	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch frame.Type {
		case "ping":
			client.send(OutboundFrame{Type: "pong"})
		case "message":
			// Run the turn off the loop so pings and the busy
			// rejection stay responsive while a response streams.
			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				h.submit(r.Context(), ctrl, client, text)
			}(frame.Text)
		}
	}
}

func (h *Handler) submit(ctx context.Context, ctrl *conversation.Controller, client *wsClient, text string) {
	err := ctrl.SubmitUserTurn(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrEmptyMessage):
	case errors.Is(err, conversation.ErrBusy):
		client.send(OutboundFrame{Type: "error", Text: "One moment please, I'm still working on your last request."})
	default:
		h.logger.Error("webchat: turn failed", "error", err, "session_id", ctrl.SessionID())
		client.send(OutboundFrame{Type: "error", Text: "Sorry, something went wrong. Please try again."})
	}
}

// priorDetails reads optional patient details handed over by the host
// page, so a returning patient is greeted by name.
func priorDetails(r *http.Request) *conversation.BookingDetails {
	q := r.URL.Query()
	d := conversation.BookingDetails{
		Name:    strings.TrimSpace(q.Get("name")),
		Email:   strings.TrimSpace(q.Get("email")),
		Phone:   strings.TrimSpace(q.Get("phone")),
		Symptom: strings.TrimSpace(q.Get("symptom")),
	}
	if d == (conversation.BookingDetails{}) {
		return nil
	}
	return &d
}

// HandleHistory returns the persisted transcript for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if h.history == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []conversation.Message{}})
		return
	}

	transcript, err := h.history.Load(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("webchat: failed to load history", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if transcript == nil {
		transcript = []conversation.Message{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": transcript})
}

type sinkFunc func(sessionID string, transcript []conversation.Message)

func (f sinkFunc) Publish(sessionID string, transcript []conversation.Message) {
	f(sessionID, transcript)
}
