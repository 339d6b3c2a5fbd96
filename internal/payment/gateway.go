// Package payment holds the payment collaborator the order flow hands
// submitted orders to.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrInvalidSignature    = errors.New("payment callback signature invalid")
)

// Checkout is what the gateway needs to bill an order.
type Checkout struct {
	OrderID string
	OwnerID string
	// Amount in cents.
	Amount int
}

type Transaction struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Amount      int    `json:"amount"`
	RedirectURL string `json:"redirect_url"`
}

// Gateway receives orders once they await payment and answers whether they
// have been paid. Confirmations come back through the payment callback.
type Gateway interface {
	CreateTransaction(ctx context.Context, c Checkout) (Transaction, error)
	IsPaid(ctx context.Context, orderID string) (bool, error)
}

// Notification is a verified payment callback. OrderID is empty for
// callbacks that carry nothing about an order.
type Notification struct {
	TransactionID string
	OrderID       string
	Paid          bool
}

// CallbackParser turns a raw callback request into a Notification.
type CallbackParser interface {
	ParseCallback(ctx context.Context, transactionID string, header http.Header, payload []byte) (Notification, error)
}

// ManualGateway keeps transactions in memory; payments are recorded with
// MarkPaid, typically from the callback endpoint or an operator.
type ManualGateway struct {
	baseURL string
	logger  *zap.Logger

	mu      sync.Mutex
	byOrder map[string]*manualTx
	byID    map[string]*manualTx
}

type manualTx struct {
	Transaction
	paid bool
}

func NewManualGateway(baseURL string, logger *zap.Logger) *ManualGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(zap.String("component", "payment")),
		byOrder: make(map[string]*manualTx),
		byID:    make(map[string]*manualTx),
	}
}

// CreateTransaction returns the open transaction of the order, creating it
// on first call.
func (g *ManualGateway) CreateTransaction(_ context.Context, c Checkout) (Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tx, ok := g.byOrder[c.OrderID]; ok {
		return tx.Transaction, nil
	}
	id := uuid.New().String()
	tx := &manualTx{Transaction: Transaction{
		ID:          id,
		OrderID:     c.OrderID,
		Amount:      c.Amount,
		RedirectURL: fmt.Sprintf("%s/payments/%s", g.baseURL, id),
	}}
	g.byOrder[c.OrderID] = tx
	g.byID[id] = tx
	g.logger.Info("payment transaction created",
		zap.String("transaction_id", id),
		zap.String("order_id", c.OrderID),
		zap.Int("amount", c.Amount),
	)
	return tx.Transaction, nil
}

func (g *ManualGateway) IsPaid(_ context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.byOrder[orderID]
	if !ok {
		return false, nil
	}
	return tx.paid, nil
}

// MarkPaid records the payment of a transaction and returns its order id.
func (g *ManualGateway) MarkPaid(transactionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.byID[transactionID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	tx.paid = true
	return tx.OrderID, nil
}

// ParseCallback treats every callback as a successful payment of the
// transaction. The endpoint is guarded by the shared callback secret.
func (g *ManualGateway) ParseCallback(_ context.Context, transactionID string, _ http.Header, _ []byte) (Notification, error) {
	orderID, err := g.MarkPaid(transactionID)
	if err != nil {
		return Notification{}, err
	}
	g.logger.Info("payment recorded", zap.String("transaction_id", transactionID), zap.String("order_id", orderID))
	return Notification{TransactionID: transactionID, OrderID: orderID, Paid: true}, nil
}
