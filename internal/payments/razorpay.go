package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

var razorpayTracer = otel.Tracer("mediconnect.internal.payments.razorpay")

// ErrGatewayUnavailable signals that the gateway could not be reached at
// all; callers map this to the "failed to load payment gateway" path.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// RazorpayGateway charges consultation fees through the Razorpay Orders
// API. It creates an order, then polls the order's payments until one
// reaches a terminal status or the wait budget is exhausted.
type RazorpayGateway struct {
	keyID        string
	keySecret    string
	baseURL      string
	pollInterval time.Duration
	pollWait     time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

func NewRazorpayGateway(keyID, keySecret string, logger *logging.Logger) *RazorpayGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &RazorpayGateway{
		keyID:        keyID,
		keySecret:    keySecret,
		baseURL:      "https://api.razorpay.com",
		pollInterval: 2 * time.Second,
		pollWait:     3 * time.Minute,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// WithBaseURL overrides the Razorpay API host (e.g., for tests).
func (g *RazorpayGateway) WithBaseURL(baseURL string) *RazorpayGateway {
	if baseURL == "" {
		return g
	}
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

// WithPollWait overrides how long Pay waits for a terminal payment status.
func (g *RazorpayGateway) WithPollWait(wait time.Duration) *RazorpayGateway {
	if wait > 0 {
		g.pollWait = wait
	}
	return g
}

func (g *RazorpayGateway) Pay(ctx context.Context, req Request) (Outcome, error) {
	if g.keyID == "" || g.keySecret == "" {
		return Outcome{}, fmt.Errorf("%w: missing razorpay credentials", ErrGatewayUnavailable)
	}

	ctx, span := razorpayTracer.Start(ctx, "razorpay.pay")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("mediconnect.amount_minor", req.AmountMinor),
		attribute.String("mediconnect.currency", req.Currency),
	)

	orderID, err := g.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	g.logger.Info("razorpay order created", "order_id", orderID, "amount_minor", req.AmountMinor)
	return g.awaitPayment(ctx, orderID, req)
}

func (g *RazorpayGateway) createOrder(ctx context.Context, req Request) (string, error) {
	receipt := uuid.NewString()
	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  receipt,
		"notes": map[string]string{
			"name":        req.Name,
			"email":       req.Email,
			"contact":     req.Contact,
			"description": req.Description,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("payments: razorpay payload: %w", err)
	}

	apiURL := g.baseURL + "/v1/orders"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("payments: razorpay request: %w", err)
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("payments: razorpay api status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("payments: razorpay decode: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("payments: razorpay response missing order id")
	}
	return parsed.ID, nil
}

// awaitPayment polls the order's payments until one is captured or failed.
// An exhausted wait budget resolves as a failure outcome, not an error:
// the gateway was reachable, the payer simply never completed the flow.
func (g *RazorpayGateway) awaitPayment(ctx context.Context, orderID string, req Request) (Outcome, error) {
	deadline := time.Now().Add(g.pollWait)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		payment, terminal, err := g.fetchPaymentStatus(ctx, orderID, req)
		if err != nil {
			g.logger.Warn("razorpay status poll failed", "error", err, "order_id", orderID)
		} else if terminal {
			return payment, nil
		}

		if time.Now().After(deadline) {
			return Outcome{Succeeded: false, Reason: "payment not completed in time"}, nil
		}

		select {
		case <-ctx.Done():
			return Outcome{Succeeded: false, Reason: "cancelled"}, nil
		case <-ticker.C:
		}
	}
}

func (g *RazorpayGateway) fetchPaymentStatus(ctx context.Context, orderID string, req Request) (Outcome, bool, error) {
	apiURL := fmt.Sprintf("%s/v1/orders/%s/payments", g.baseURL, orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("payments: razorpay request: %w", err)
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("payments: razorpay http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return Outcome{}, false, fmt.Errorf("payments: razorpay api status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Items []struct {
			ID               string `json:"id"`
			Status           string `json:"status"`
			ErrorDescription string `json:"error_description"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Outcome{}, false, fmt.Errorf("payments: razorpay decode: %w", err)
	}

	for _, item := range parsed.Items {
		switch item.Status {
		case "captured":
			return Outcome{Succeeded: true, PaymentID: item.ID}, true, nil
		case "authorized":
			// Funds are held but not collected yet; success is only
			// reported once the capture goes through. A failed capture
			// is retried on the next poll.
			if err := g.capturePayment(ctx, item.ID, req); err != nil {
				return Outcome{}, false, fmt.Errorf("payments: razorpay capture: %w", err)
			}
			g.logger.Info("razorpay payment captured", "payment_id", item.ID, "order_id", orderID)
			return Outcome{Succeeded: true, PaymentID: item.ID}, true, nil
		case "failed":
			reason := item.ErrorDescription
			if reason == "" {
				reason = "payment failed"
			}
			return Outcome{Succeeded: false, Reason: reason}, true, nil
		}
	}
	return Outcome{}, false, nil
}

func (g *RazorpayGateway) capturePayment(ctx context.Context, paymentID string, req Request) error {
	payload, err := json.Marshal(map[string]any{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
	})
	if err != nil {
		return fmt.Errorf("payments: razorpay payload: %w", err)
	}

	apiURL := fmt.Sprintf("%s/v1/payments/%s/capture", g.baseURL, paymentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("payments: razorpay request: %w", err)
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payments: razorpay http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("payments: razorpay api status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
