package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mediconnect/mediconnect-ai/internal/appointments"
	"github.com/mediconnect/mediconnect-ai/internal/observability/metrics"
	"github.com/mediconnect/mediconnect-ai/internal/payments"
	"github.com/mediconnect/mediconnect-ai/internal/triage"
	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

// Fixed user-facing texts for the locally-recovered failure paths.
const (
	initErrorText       = "I'm sorry, I'm having trouble connecting to my AI brain. Please try again in a moment."
	streamErrorText     = "I'm sorry, an error occurred. Please try again."
	detailsRetryText    = "Something went wrong. It seems I'm missing some details for the booking. Could you please provide your name, email, phone, and symptom again?"
	gatewayLoadingText  = "Loading payment gateway..."
	gatewayLoadFailText = "Failed to load payment gateway. Please try again."
)

var (
	// ErrEmptyMessage rejects blank user turns.
	ErrEmptyMessage = errors.New("conversation: empty message")
	// ErrBusy rejects a submission while a prior turn or a payment is
	// still in flight. Rejected turns are a no-op, never queued.
	ErrBusy = errors.New("conversation: turn or payment already in flight")
)

// TranscriptSink observes transcript updates. Publish receives a snapshot
// after every mutation, including each streamed fragment; it is the only
// way partial assistant output becomes visible. Publish is invoked
// without internal locks held, so implementations may call back into the
// controller.
type TranscriptSink interface {
	Publish(sessionID string, transcript []Message)
}

// AppointmentRecorder hands completed bookings to the persistence layer.
// appointments.Repository satisfies it.
type AppointmentRecorder interface {
	Save(ctx context.Context, appt appointments.Appointment) error
}

// ControllerConfig carries the per-deployment knobs the controller needs.
type ControllerConfig struct {
	AppName       string
	FeeMinorUnits int64
	Currency      string
}

// Controller owns one Session and sequences the end-to-end interaction:
// triage chat, action detection, payment, booking confirmation. It is the
// sole mutator of the Session.
type Controller struct {
	cfg      ControllerConfig
	streamer Streamer
	gateway  payments.Gateway
	logger   *logging.Logger

	recorder  AppointmentRecorder
	store     TranscriptStore
	sink      TranscriptSink
	metrics   *metrics.ConversationMetrics
	onBooked  func(appointments.Appointment)
	onState   func(State)
	onPayment func(payments.Outcome)
	clock     func() time.Time

	sessionID string

	mu      sync.Mutex
	session *Session
	channel StreamChannel
	busy    bool // an assistant turn is streaming
	paying  bool // a payment outcome is outstanding

	paymentWG sync.WaitGroup
}

// NewController creates a controller around a fresh idle session.
func NewController(cfg ControllerConfig, streamer Streamer, gateway payments.Gateway, logger *logging.Logger) *Controller {
	if streamer == nil {
		panic("conversation: streamer cannot be nil")
	}
	if gateway == nil {
		panic("conversation: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	session := NewSession()
	return &Controller{
		cfg:       cfg,
		streamer:  streamer,
		gateway:   gateway,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
		session:   session,
		sessionID: session.ID,
	}
}

// WithSink attaches a transcript observer.
func (c *Controller) WithSink(sink TranscriptSink) *Controller {
	c.sink = sink
	return c
}

// WithRecorder attaches the appointment persistence collaborator.
func (c *Controller) WithRecorder(recorder AppointmentRecorder) *Controller {
	c.recorder = recorder
	return c
}

// WithTranscriptStore attaches the transcript history store.
func (c *Controller) WithTranscriptStore(store TranscriptStore) *Controller {
	c.store = store
	return c
}

// WithMetrics attaches conversation metrics.
func (c *Controller) WithMetrics(m *metrics.ConversationMetrics) *Controller {
	c.metrics = m
	return c
}

// WithOnBooked registers the host application hook fired exactly once per
// successful payment.
func (c *Controller) WithOnBooked(fn func(appointments.Appointment)) *Controller {
	c.onBooked = fn
	return c
}

// WithOnStateChange registers a hook fired after every state transition,
// including those resolved asynchronously by the payment flow.
func (c *Controller) WithOnStateChange(fn func(State)) *Controller {
	c.onState = fn
	return c
}

// WithOnPaymentResolved registers a hook fired once per payment attempt
// with its terminal outcome. A gateway that never became available is
// reported as a failed outcome here.
func (c *Controller) WithOnPaymentResolved(fn func(payments.Outcome)) *Controller {
	c.onPayment = fn
	return c
}

// WithClock overrides the time source (tests).
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// SessionID returns the owned session's identifier.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the session's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Snapshot returns a copy of the transcript.
func (c *Controller) Snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

// PendingDetails returns a copy of the captured booking details, if any.
func (c *Controller) PendingDetails() *BookingDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.PendingDetails == nil {
		return nil
	}
	d := *c.session.PendingDetails
	return &d
}

// Initialize opens the session's stream channel, seeded once with the
// system instruction, and emits the opening greeting. A backend that is
// unreachable at this point is a soft failure: the session stays open
// with an apology in the transcript, and every subsequent turn fails
// locally until a retry succeeds.
func (c *Controller) Initialize(ctx context.Context, prior *BookingDetails) {
	instruction := BuildSystemPrompt(c.cfg.AppName, prior)

	channel, err := c.streamer.Open(ctx, instruction, nil)
	if err != nil {
		c.logger.Error("failed to open response stream", "error", err, "session_id", c.sessionID)
		c.mu.Lock()
		c.session.appendAssistant(initErrorText)
		snapshot := c.session.snapshot()
		c.mu.Unlock()
		c.publish(snapshot)
		c.persist(ctx)
		return
	}

	c.mu.Lock()
	c.channel = channel
	c.session.appendAssistant(Greeting(c.cfg.AppName, prior))
	c.session.State = StateChatting
	snapshot := c.session.snapshot()
	c.mu.Unlock()
	c.publish(snapshot)
	c.notifyState(StateChatting)
	c.persist(ctx)
}

// SubmitUserTurn runs one full turn: append the user message and a
// streaming placeholder, apply fragments in arrival order, then dispatch
// on the completed text. The placeholder's streaming flag is cleared
// exactly once on every exit path. Returns ErrBusy without touching the
// transcript while a turn or payment is in flight.
func (c *Controller) SubmitUserTurn(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy || c.paying {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.session.appendUser(text)
	placeholderID := c.session.appendStreamingPlaceholder().ID
	channel := c.channel
	snapshot := c.session.snapshot()
	c.mu.Unlock()
	c.publish(snapshot)

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	started := c.clock()

	if channel == nil {
		// Initialization never succeeded; recover locally per turn.
		c.finishTurn(ctx, placeholderID, streamErrorText, "", nil, "error", started)
		return nil
	}

	fragments, err := channel.Send(ctx, text)
	if err != nil {
		c.logger.Error("failed to send user turn", "error", err, "session_id", c.sessionID)
		c.metrics.ObserveStreamFailure()
		c.finishTurn(ctx, placeholderID, streamErrorText, "", nil, "error", started)
		return nil
	}

	var full strings.Builder
	for chunk := range fragments {
		if chunk.Err != nil {
			c.logger.Error("response stream failed", "error", chunk.Err, "session_id", c.sessionID)
			c.metrics.ObserveStreamFailure()
			c.finishTurn(ctx, placeholderID, streamErrorText, "", nil, "error", started)
			return nil
		}
		if chunk.Done {
			break
		}
		if chunk.Text == "" {
			continue
		}
		full.WriteString(chunk.Text)
		c.metrics.ObserveFragment()
		c.mu.Lock()
		c.session.appendFragment(placeholderID, chunk.Text)
		snapshot := c.session.snapshot()
		c.mu.Unlock()
		c.publish(snapshot)
	}

	finalText := full.String()
	details, recognized := ExtractAction(finalText)
	if !recognized {
		c.finishTurn(ctx, placeholderID, finalText, "", triageOptions(text), "message", started)
		return nil
	}

	if err := details.Validate(); err != nil {
		// Recognized but incomplete: correct conversationally, keep state.
		c.finishTurn(ctx, placeholderID, detailsRetryText, finalText, nil, "invalid_details", started)
		return nil
	}

	c.mu.Lock()
	c.session.PendingDetails = details
	c.session.finalize(placeholderID, bookingConfirmText(details.Symptom), finalText)
	c.session.State = StateAwaitingPayment
	c.paying = true
	c.session.appendSystemNotice(gatewayLoadingText)
	snapshot = c.session.snapshot()
	c.mu.Unlock()
	c.publish(snapshot)
	c.notifyState(StateAwaitingPayment)
	c.metrics.ObserveTurn("action", c.clock().Sub(started).Seconds())
	c.persist(ctx)

	captured := *details
	c.paymentWG.Add(1)
	go func() {
		defer c.paymentWG.Done()
		c.runPayment(context.Background(), captured)
	}()
	return nil
}

// Close discards the stream channel so no fragment delivered afterwards
// can mutate the session, and waits out any outstanding payment.
func (c *Controller) Close() error {
	c.mu.Lock()
	channel := c.channel
	c.channel = nil
	c.mu.Unlock()

	var err error
	if channel != nil {
		err = channel.Close()
	}
	c.paymentWG.Wait()
	return err
}

func (c *Controller) finishTurn(ctx context.Context, placeholderID, text, historyText string, opts []MessageOption, outcome string, started time.Time) {
	c.mu.Lock()
	c.session.finalize(placeholderID, text, historyText)
	if len(opts) > 0 {
		if msg := c.session.find(placeholderID); msg != nil {
			msg.Options = opts
		}
	}
	snapshot := c.session.snapshot()
	c.mu.Unlock()
	c.publish(snapshot)
	c.metrics.ObserveTurn(outcome, c.clock().Sub(started).Seconds())
	c.persist(ctx)
}

// runPayment drives the gateway to its single terminal outcome and
// reconciles it back into the session. At most one payment is ever
// outstanding: SubmitUserTurn rejects new turns while paying is set.
func (c *Controller) runPayment(ctx context.Context, details BookingDetails) {
	outcome, err := c.gateway.Pay(ctx, payments.Request{
		AmountMinor: c.cfg.FeeMinorUnits,
		Currency:    c.cfg.Currency,
		Name:        details.Name,
		Description: "Appointment for " + details.Symptom,
		Email:       details.Email,
		Contact:     details.Phone,
	})

	if err != nil {
		// Gateway never became available. Same transition as a payment
		// failure, distinct message; details stay captured for a retry.
		c.logger.Error("payment gateway unavailable", "error", err, "session_id", c.sessionID)
		c.metrics.ObservePaymentOutcome("load_failure")
		c.mu.Lock()
		c.session.appendSystemNotice(gatewayLoadFailText)
		c.session.State = StateChatting
		c.paying = false
		snapshot := c.session.snapshot()
		c.mu.Unlock()
		c.publish(snapshot)
		c.notifyPayment(payments.Outcome{Succeeded: false, Reason: "payment gateway unavailable"})
		c.notifyState(StateChatting)
		c.persist(ctx)
		return
	}

	if !outcome.Succeeded {
		c.logger.Info("payment failed", "reason", outcome.Reason, "session_id", c.sessionID)
		c.metrics.ObservePaymentOutcome("failure")
		c.mu.Lock()
		c.session.appendAssistant(paymentFailureText(outcome.Reason))
		c.session.State = StateChatting
		c.paying = false
		snapshot := c.session.snapshot()
		c.mu.Unlock()
		c.publish(snapshot)
		c.notifyPayment(outcome)
		c.notifyState(StateChatting)
		c.persist(ctx)
		return
	}

	bookedAt := c.clock()
	appt := appointments.New(outcome.PaymentID, details.Name, details.Email, details.Phone, details.Symptom, bookedAt)

	if c.recorder != nil {
		if recErr := c.recorder.Save(ctx, appt); recErr != nil {
			// The payment went through; persistence failure must not
			// roll the conversation back.
			c.logger.Error("failed to record appointment", "error", recErr, "payment_id", appt.ID)
		}
	}

	c.logger.Info("appointment booked", "payment_id", appt.ID, "patient_id", appt.PatientID, "session_id", c.sessionID)
	c.metrics.ObservePaymentOutcome("success")

	c.mu.Lock()
	c.session.appendAssistant(paymentSuccessText(details.Name, appt.PatientID))
	c.session.State = StateBookingConfirmed
	c.session.PendingDetails = nil
	c.paying = false
	snapshot := c.session.snapshot()
	c.mu.Unlock()
	c.publish(snapshot)
	c.notifyPayment(outcome)
	c.notifyState(StateBookingConfirmed)
	c.persist(ctx)

	if c.onBooked != nil {
		c.onBooked(appt)
	}
}

// publish delivers a transcript snapshot taken under the lock. It runs
// unlocked so a sink may query the controller from inside Publish.
func (c *Controller) publish(snapshot []Message) {
	if c.sink != nil {
		c.sink.Publish(c.sessionID, snapshot)
	}
}

func (c *Controller) notifyState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Controller) notifyPayment(outcome payments.Outcome) {
	if c.onPayment != nil {
		c.onPayment(outcome)
	}
}

func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	snapshot := c.session.snapshot()
	c.mu.Unlock()
	if err := c.store.Save(ctx, c.sessionID, snapshot); err != nil {
		c.logger.Warn("failed to persist transcript", "error", err, "session_id", c.sessionID)
	}
}

// triageOptions attaches a booking follow-up when the user's text matches
// the reference tables and the match considers booking appropriate.
func triageOptions(userText string) []MessageOption {
	info, ok := triage.Lookup(userText)
	if !ok || !info.OfferBooking {
		return nil
	}
	return []MessageOption{{
		Label:   "Book an appointment",
		Payload: "I'd like to book an appointment.",
	}}
}

func bookingConfirmText(symptom string) string {
	return fmt.Sprintf("Great! I have all your details. To confirm your appointment for %q, we'll proceed with the nominal consultation fee.", symptom)
}

func paymentSuccessText(name, patientID string) string {
	return fmt.Sprintf("Thank you, %s! Your payment was successful and your appointment is booked.\nYour Patient ID is %s.\n\nYou can now close this chat or ask more questions.", name, patientID)
}

func paymentFailureText(reason string) string {
	return fmt.Sprintf("The payment failed or was cancelled. Reason: %s\n\nDon't worry, your appointment is not booked yet. You can try the payment again or ask me to change the details. What would you like to do?", reason)
}
