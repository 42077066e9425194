package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediconnect/mediconnect-ai/internal/appointments"
	"github.com/mediconnect/mediconnect-ai/internal/payments"
	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

const bookingActionJSON = `{"action":"BOOK_APPOINTMENT","details":{"name":"Asha Rao","email":"asha@example.com","phone":"+91 98765 43210","symptom":"high fever"}}`

type scriptedChannel struct {
	mu      sync.Mutex
	scripts [][]StreamChunk
	calls   int
	sendErr error
	closed  bool
}

func (s *scriptedChannel) Send(_ context.Context, _ string) (<-chan StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	script := s.scripts[s.calls]
	s.calls++
	out := make(chan StreamChunk, len(script))
	for _, chunk := range script {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (s *scriptedChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type scriptedStreamer struct {
	channel     *scriptedChannel
	openErr     error
	instruction string
}

func (s *scriptedStreamer) Open(_ context.Context, systemInstruction string, _ []ChatMessage) (StreamChannel, error) {
	s.instruction = systemInstruction
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.channel, nil
}

type scriptedGateway struct {
	mu       sync.Mutex
	requests []payments.Request
	outcome  payments.Outcome
	err      error
	release  chan struct{}
}

func (g *scriptedGateway) Pay(_ context.Context, req payments.Request) (payments.Outcome, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.release != nil {
		<-g.release
	}
	return g.outcome, g.err
}

func (g *scriptedGateway) calls() []payments.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.Request(nil), g.requests...)
}

type captureRecorder struct {
	mu       sync.Mutex
	appts    []appointments.Appointment
	failWith error
}

func (r *captureRecorder) Save(_ context.Context, appt appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.appts = append(r.appts, appt)
	return nil
}

type captureSink struct {
	mu        sync.Mutex
	snapshots [][]Message
}

func (s *captureSink) Publish(_ string, transcript []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, transcript)
}

func prose(parts ...string) []StreamChunk {
	chunks := make([]StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, StreamChunk{Text: p})
	}
	return append(chunks, StreamChunk{Done: true})
}

func newTestController(streamer Streamer, gateway payments.Gateway) *Controller {
	cfg := ControllerConfig{AppName: "MediConnect AI", FeeMinorUnits: 50000, Currency: "INR"}
	return NewController(cfg, streamer, gateway, logging.New("error"))
}

func lastMessage(t *testing.T, c *Controller) Message {
	t.Helper()
	transcript := c.Snapshot()
	require.NotEmpty(t, transcript)
	return transcript[len(transcript)-1]
}

func TestInitializeOpensChattingWithGreeting(t *testing.T) {
	streamer := &scriptedStreamer{channel: &scriptedChannel{}}
	c := newTestController(streamer, &scriptedGateway{})

	require.Equal(t, StateIdle, c.State())
	c.Initialize(context.Background(), nil)

	assert.Equal(t, StateChatting, c.State())
	msg := lastMessage(t, c)
	assert.Equal(t, SenderAssistant, msg.Sender)
	assert.Contains(t, msg.Text, "MediConnect AI")
	assert.False(t, msg.IsStreaming)
	assert.Contains(t, streamer.instruction, "BOOK_APPOINTMENT")
}

func TestInitializeGreetsReturningPatientByName(t *testing.T) {
	streamer := &scriptedStreamer{channel: &scriptedChannel{}}
	c := newTestController(streamer, &scriptedGateway{})

	prior := &BookingDetails{Name: "Asha Rao", Email: "asha@example.com", Phone: "123", Symptom: "migraine"}
	c.Initialize(context.Background(), prior)

	assert.Contains(t, lastMessage(t, c).Text, "Asha Rao")
	assert.Contains(t, streamer.instruction, "asha@example.com")
}

func TestInitializeStreamFailureIsSoft(t *testing.T) {
	streamer := &scriptedStreamer{openErr: errors.New("backend unreachable")}
	c := newTestController(streamer, &scriptedGateway{})

	c.Initialize(context.Background(), nil)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, initErrorText, lastMessage(t, c).Text)

	// Subsequent turns fail locally instead of panicking.
	require.NoError(t, c.SubmitUserTurn(context.Background(), "hello"))
	assert.Equal(t, streamErrorText, lastMessage(t, c).Text)
}

func TestSubmitRejectsEmptyMessage(t *testing.T) {
	c := newTestController(&scriptedStreamer{channel: &scriptedChannel{}}, &scriptedGateway{})
	c.Initialize(context.Background(), nil)

	before := len(c.Snapshot())
	assert.ErrorIs(t, c.SubmitUserTurn(context.Background(), "   "), ErrEmptyMessage)
	assert.Len(t, c.Snapshot(), before)
}

func TestProseTurnStaysChatting(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{
		prose("For a runny nose, ", "rest and warm fluids ", "usually help."),
	}}
	gateway := &scriptedGateway{}
	sink := &captureSink{}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).WithSink(sink)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "I have a runny nose"))

	assert.Equal(t, StateChatting, c.State())
	assert.Empty(t, gateway.calls())

	msg := lastMessage(t, c)
	assert.Equal(t, "For a runny nose, rest and warm fluids usually help.", msg.Text)
	assert.False(t, msg.IsStreaming)
	require.NotEmpty(t, msg.Options)
	assert.Equal(t, "Book an appointment", msg.Options[0].Label)

	// Each fragment was published, in order, against a single streaming message.
	var partials []string
	for _, snap := range sink.snapshots {
		streaming := 0
		for _, m := range snap {
			if m.IsStreaming {
				streaming++
				partials = append(partials, m.Text)
			}
		}
		assert.LessOrEqual(t, streaming, 1)
	}
	assert.Contains(t, partials, "For a runny nose, ")
	assert.Contains(t, partials, "For a runny nose, rest and warm fluids ")
}

func TestMidStreamErrorYieldsApology(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{
		{{Text: "Let me see"}, {Done: true, Err: errors.New("stream reset")}},
	}}
	c := newTestController(&scriptedStreamer{channel: channel}, &scriptedGateway{})
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "what about headaches?"))

	msg := lastMessage(t, c)
	assert.Equal(t, streamErrorText, msg.Text)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, StateChatting, c.State())

	// The session remains usable afterwards.
	channel.mu.Lock()
	channel.scripts = append(channel.scripts, prose("Headaches are common."))
	channel.mu.Unlock()
	require.NoError(t, c.SubmitUserTurn(context.Background(), "try again"))
	assert.Equal(t, "Headaches are common.", lastMessage(t, c).Text)
}

func TestBookingActionMovesToAwaitingPayment(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{
		prose(bookingActionJSON[:40], bookingActionJSON[40:]),
	}}
	gateway := &scriptedGateway{release: make(chan struct{}), outcome: payments.Outcome{Succeeded: true, PaymentID: "pay_123"}}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it please"))

	assert.Equal(t, StateAwaitingPayment, c.State())

	transcript := c.Snapshot()
	notice := transcript[len(transcript)-1]
	assert.Equal(t, SenderSystem, notice.Sender)
	assert.Equal(t, gatewayLoadingText, notice.Text)

	confirm := transcript[len(transcript)-2]
	assert.Contains(t, confirm.Text, "high fever")
	assert.NotContains(t, confirm.Text, "BOOK_APPOINTMENT")
	assert.False(t, confirm.IsStreaming)

	require.NotNil(t, c.PendingDetails())
	assert.Equal(t, "Asha Rao", c.PendingDetails().Name)

	// New turns are rejected while the payment is outstanding.
	assert.ErrorIs(t, c.SubmitUserTurn(context.Background(), "hello?"), ErrBusy)

	close(gateway.release)
	require.NoError(t, c.Close())

	require.Len(t, gateway.calls(), 1)
	req := gateway.calls()[0]
	assert.Equal(t, int64(50000), req.AmountMinor)
	assert.Equal(t, "INR", req.Currency)
	assert.Equal(t, "Appointment for high fever", req.Description)
	assert.Equal(t, "asha@example.com", req.Email)
}

func TestInvalidDetailsPromptForCorrection(t *testing.T) {
	missingEmail := `{"action":"BOOK_APPOINTMENT","details":{"name":"Asha Rao","email":"","phone":"123","symptom":"fever"}}`
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(missingEmail)}}
	gateway := &scriptedGateway{}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book me in"))

	assert.Equal(t, StateChatting, c.State())
	assert.Nil(t, c.PendingDetails())
	assert.Empty(t, gateway.calls())
	assert.Equal(t, detailsRetryText, lastMessage(t, c).Text)
}

func TestPaymentFailureKeepsDetailsForRetry(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: false, Reason: "cancelled"}}
	recorder := &captureRecorder{}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).WithRecorder(recorder)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	assert.Equal(t, StateChatting, c.State())
	msg := lastMessage(t, c)
	assert.Equal(t, SenderAssistant, msg.Sender)
	assert.Contains(t, msg.Text, "cancelled")
	assert.Contains(t, msg.Text, "not booked yet")

	require.NotNil(t, c.PendingDetails())
	assert.Equal(t, "high fever", c.PendingDetails().Symptom)
	assert.Empty(t, recorder.appts)
}

func TestGatewayLoadFailureKeepsDetailsForRetry(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{err: payments.ErrGatewayUnavailable}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	assert.Equal(t, StateChatting, c.State())
	msg := lastMessage(t, c)
	assert.Equal(t, SenderSystem, msg.Sender)
	assert.Equal(t, gatewayLoadFailText, msg.Text)
	require.NotNil(t, c.PendingDetails())
}

func TestSuccessfulPaymentBooksAppointment(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: true, PaymentID: "pay_123"}}
	recorder := &captureRecorder{}

	var booked []appointments.Appointment
	bookedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).
		WithRecorder(recorder).
		WithOnBooked(func(appt appointments.Appointment) { booked = append(booked, appt) }).
		WithClock(func() time.Time { return bookedAt })
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	assert.Equal(t, StateBookingConfirmed, c.State())
	assert.Nil(t, c.PendingDetails())

	require.Len(t, recorder.appts, 1)
	appt := recorder.appts[0]
	assert.Equal(t, "pay_123", appt.ID)
	assert.Equal(t, appointments.PaymentStatusCompleted, appt.PaymentStatus)
	assert.True(t, strings.HasPrefix(appt.PatientID, "PID-"))
	assert.Equal(t, "high fever", appt.Symptom)

	require.Len(t, booked, 1)
	assert.Equal(t, appt.ID, booked[0].ID)

	msg := lastMessage(t, c)
	assert.Contains(t, msg.Text, "Asha Rao")
	assert.Contains(t, msg.Text, appt.PatientID)
}

func TestRecorderFailureDoesNotRollBackBooking(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: true, PaymentID: "pay_456"}}
	recorder := &captureRecorder{failWith: errors.New("database down")}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).WithRecorder(recorder)
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	assert.Equal(t, StateBookingConfirmed, c.State())
	assert.Contains(t, lastMessage(t, c).Text, "appointment is booked")
}

func TestStateAndPaymentHooksFireOnSuccess(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: true, PaymentID: "pay_123"}}

	var states []State
	var outcomes []payments.Outcome
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).
		WithOnStateChange(func(s State) { states = append(states, s) }).
		WithOnPaymentResolved(func(o payments.Outcome) { outcomes = append(outcomes, o) })
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	// The host observes the payment resolving without a further turn.
	assert.Equal(t, []State{StateChatting, StateAwaitingPayment, StateBookingConfirmed}, states)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Succeeded)
	assert.Equal(t, "pay_123", outcomes[0].PaymentID)
}

func TestStateAndPaymentHooksFireOnFailure(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: false, Reason: "cancelled"}}

	var states []State
	var outcomes []payments.Outcome
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).
		WithOnStateChange(func(s State) { states = append(states, s) }).
		WithOnPaymentResolved(func(o payments.Outcome) { outcomes = append(outcomes, o) })
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	assert.Equal(t, []State{StateChatting, StateAwaitingPayment, StateChatting}, states)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded)
	assert.Equal(t, "cancelled", outcomes[0].Reason)
}

func TestGatewayLoadFailureResolvesPaymentHook(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{err: payments.ErrGatewayUnavailable}

	var outcomes []payments.Outcome
	c := newTestController(&scriptedStreamer{channel: channel}, gateway).
		WithOnPaymentResolved(func(o payments.Outcome) { outcomes = append(outcomes, o) })
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded)
	assert.Contains(t, outcomes[0].Reason, "unavailable")
}

// querySink calls back into the controller from inside Publish; a sink
// invoked with the session lock held would deadlock here.
type querySink struct {
	controller *Controller
	states     []State
}

func (s *querySink) Publish(string, []Message) {
	s.states = append(s.states, s.controller.State())
	_ = s.controller.Snapshot()
}

func TestSinkMayQueryControllerFromPublish(t *testing.T) {
	channel := &scriptedChannel{scripts: [][]StreamChunk{prose(bookingActionJSON)}}
	gateway := &scriptedGateway{outcome: payments.Outcome{Succeeded: true, PaymentID: "pay_123"}}
	c := newTestController(&scriptedStreamer{channel: channel}, gateway)
	sink := &querySink{controller: c}
	c.WithSink(sink)

	c.Initialize(context.Background(), nil)
	require.NoError(t, c.SubmitUserTurn(context.Background(), "book it"))
	require.NoError(t, c.Close())

	require.NotEmpty(t, sink.states)
	assert.Equal(t, StateBookingConfirmed, sink.states[len(sink.states)-1])
}

func TestSendFailureYieldsApology(t *testing.T) {
	channel := &scriptedChannel{sendErr: errors.New("connection lost")}
	c := newTestController(&scriptedStreamer{channel: channel}, &scriptedGateway{})
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.SubmitUserTurn(context.Background(), "hello"))
	msg := lastMessage(t, c)
	assert.Equal(t, streamErrorText, msg.Text)
	assert.False(t, msg.IsStreaming)
}

func TestCloseDiscardsChannel(t *testing.T) {
	channel := &scriptedChannel{}
	c := newTestController(&scriptedStreamer{channel: channel}, &scriptedGateway{})
	c.Initialize(context.Background(), nil)

	require.NoError(t, c.Close())
	assert.True(t, channel.closed)

	// Turns after teardown fail locally.
	require.NoError(t, c.SubmitUserTurn(context.Background(), "still there?"))
	assert.Equal(t, streamErrorText, lastMessage(t, c).Text)
}
