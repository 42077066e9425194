package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

// FakeGateway is a dev/demo provider that resolves every payment
// immediately without external credentials.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should
// never be enabled in production.
type FakeGateway struct {
	logger *logging.Logger

	// FailWith, when non-empty, makes every Pay resolve as a failure with
	// this reason. Useful for exercising the failure path in demos.
	FailWith string
}

func NewFakeGateway(logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{logger: logger}
}

func (g *FakeGateway) Pay(ctx context.Context, req Request) (Outcome, error) {
	_ = ctx
	if req.AmountMinor <= 0 {
		return Outcome{}, fmt.Errorf("payments: fake gateway requires a positive amount")
	}
	if g.FailWith != "" {
		g.logger.Info("fake payment failed", "reason", g.FailWith)
		return Outcome{Succeeded: false, Reason: g.FailWith}, nil
	}

	paymentID := "pay_fake_" + uuid.NewString()
	g.logger.Info("fake payment captured", "payment_id", paymentID, "amount_minor", req.AmountMinor)
	return Outcome{Succeeded: true, PaymentID: paymentID}, nil
}
