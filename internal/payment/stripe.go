package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

const stripeSignatureHeader = "Stripe-Signature"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Backends      *stripe.Backends
	Logger        *zap.Logger

	sessions stripeSessionAPI
}

// StripeGateway bills orders through Stripe Checkout. The order id travels as
// the session's client reference and comes back in webhook events.
type StripeGateway struct {
	sessions      stripeSessionAPI
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string
	logger        *zap.Logger

	mu      sync.Mutex
	byOrder map[string]Transaction
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	sessions := cfg.sessions
	if sessions == nil {
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "eur"
	}
	return &StripeGateway{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logger.With(zap.String("component", "payment.stripe")),
		byOrder:       make(map[string]Transaction),
	}, nil
}

func (g *StripeGateway) CreateTransaction(ctx context.Context, c Checkout) (Transaction, error) {
	g.mu.Lock()
	if tx, ok := g.byOrder[c.OrderID]; ok {
		g.mu.Unlock()
		return tx, nil
	}
	g.mu.Unlock()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(c.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(int64(c.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + c.OrderID),
				},
			},
		}},
		Metadata: map[string]string{"order_id": c.OrderID, "owner_id": c.OwnerID},
	}
	if g.successURL != "" {
		params.SuccessURL = stripe.String(g.successURL)
	}
	if g.cancelURL != "" {
		params.CancelURL = stripe.String(g.cancelURL)
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + c.OrderID)

	session, err := g.sessions.New(params)
	if err != nil {
		return Transaction{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	tx := Transaction{ID: session.ID, OrderID: c.OrderID, Amount: c.Amount, RedirectURL: session.URL}

	g.mu.Lock()
	g.byOrder[c.OrderID] = tx
	g.mu.Unlock()

	g.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("order_id", c.OrderID),
		zap.Int("amount", c.Amount),
	)
	return tx, nil
}

// IsPaid asks Stripe about the order's checkout session. Orders this process
// never opened a session for report unpaid.
func (g *StripeGateway) IsPaid(ctx context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	tx, ok := g.byOrder[orderID]
	g.mu.Unlock()
	if !ok {
		return false, nil
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := g.sessions.Get(tx.ID, params)
	if err != nil {
		return false, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

// ParseCallback verifies a Stripe webhook and extracts the checkout outcome.
func (g *StripeGateway) ParseCallback(_ context.Context, _ string, header http.Header, payload []byte) (Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		g.logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return Notification{}, nil
	}
	if event.Data == nil {
		return Notification{}, errors.New("stripe: event without data")
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return Notification{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	return Notification{
		TransactionID: session.ID,
		OrderID:       session.ClientReferenceID,
		Paid:          session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}
