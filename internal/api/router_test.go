package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ticket-shotgun/internal/api/middleware"
	"github.com/example/ticket-shotgun/internal/auth"
	"github.com/example/ticket-shotgun/internal/command"
	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/fulfillment"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/payment"
	"github.com/example/ticket-shotgun/internal/profile"
	"github.com/example/ticket-shotgun/internal/query"
	"github.com/example/ticket-shotgun/internal/validation"
)

const callbackSecret = "callback-secret-0123456789"

type apiEnv struct {
	server   *httptest.Server
	jwt      *auth.JWTService
	gateway  *payment.ManualGateway
	profiles *profile.StaticStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Now()
	ctx := context.Background()
	group := "places"
	require.NoError(t, st.WithScopeLock(ctx, store.Scope{}, func(tx store.Tx) error {
		if err := tx.PutSale(ctx, &sale.Sale{
			ID: "gala", Name: "Gala", IsActive: true,
			BeginAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour), MaxPaymentDate: now.Add(2 * time.Hour),
		}); err != nil {
			return err
		}
		if err := tx.PutGroup(ctx, &sale.ItemGroup{ID: group, Name: "Places", MaxPerUser: sale.Limit(4)}); err != nil {
			return err
		}
		return tx.PutItem(ctx, &sale.Item{
			ID: "standard", SaleID: "gala", GroupID: &group, Name: "Standard",
			IsActive: true, Price: 1500, MaxPerUser: sale.Limit(3),
			Fields: []sale.ItemField{
				{ID: "attendee", Name: "Attendee", Type: sale.FieldText, Editable: true},
				{ID: "diet", Name: "Diet", Type: sale.FieldText, Default: "none"},
			},
		})
	}))

	var timeouts order.Timeouts
	gateway := payment.NewManualGateway("https://pay.test", nil)
	validator := validation.NewValidator(timeouts)
	fulfillSvc := fulfillment.NewService(st, nil, fulfillment.Config{Timeouts: timeouts, Attempts: 5})
	cmd := command.NewHandler(st, validator, fulfillSvc, gateway, nil, command.Config{Attempts: 10, Backoff: time.Millisecond}, nil)
	qry := query.NewHandler(st, timeouts, nil)

	hash, err := auth.HashCallbackSecret(callbackSecret)
	require.NoError(t, err)

	profiles := profile.NewStaticStore()
	jwtService := auth.NewJWTService("api-test-secret-0123456789abcdef", time.Hour)
	router := NewRouter(RouterConfig{
		Handlers:           NewHandlers(cmd, qry, nil),
		ProfileHandlers:    NewProfileHandlers(profile.NewService(profiles), nil),
		PaymentHandlers:    NewPaymentHandlers(cmd, gateway, nil),
		JWTService:         jwtService,
		CallbackSecretHash: hash,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiEnv{server: srv, jwt: jwtService, gateway: gateway, profiles: profiles}
}

func (e *apiEnv) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateAccessToken(id)
	require.NoError(t, err)
	return tok
}

// do sends a request and decodes a JSON response into out when non-nil.
func (e *apiEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *apiEnv) callback(t *testing.T, txID, secret string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/payments/"+txID+"/callback", nil)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set(middleware.CallbackSecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestPublicCatalogue(t *testing.T) {
	env := newAPIEnv(t)

	var sales []query.SaleReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/sales", "", nil, &sales))
	require.Len(t, sales, 1)
	assert.Equal(t, "gala", sales[0].ID)
	assert.True(t, sales[0].IsOngoing)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/sales/nope", "", nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil, nil))
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/sales/gala/orders", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/orders", "bogus", nil, nil))
}

func TestPurchaseFlow(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, auth.Identity{UserID: "alice", Email: "alice@example.com"})

	var o query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", tok, nil, &o))
	assert.Equal(t, string(order.StatusOngoing), o.Status)

	var again query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", tok, nil, &again))
	assert.Equal(t, o.ID, again.ID, "the ongoing order is reused")

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/orders/"+o.ID+"/lines", tok,
		map[string]any{"item_id": "standard", "quantity": 2}, &o))
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3000, o.Total)

	var check validation.Result
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID+"/validation", tok, nil, &check))
	assert.True(t, check.IsValid)

	var submitted command.SubmitResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/orders/"+o.ID+"/pay", tok, nil, &submitted))
	assert.Equal(t, order.StatusAwaitingPayment, submitted.Status)
	require.NotNil(t, submitted.Payment)
	assert.Equal(t, 3000, submitted.Payment.Amount)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/orders/"+o.ID+"/lines", tok,
		map[string]any{"item_id": "standard", "quantity": 1}, nil), "lines are frozen once submitted")

	var status fulfillment.Result
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID+"/status", tok, nil, &status))
	assert.Equal(t, order.StatusAwaitingPayment, status.Status)
	assert.False(t, status.TicketsGenerated)

	code, body := env.callback(t, submitted.Payment.ID, callbackSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(order.StatusPaid), body["status"])
	assert.Equal(t, true, body["updated"])
	assert.Equal(t, true, body["tickets_generated"])

	code, body = env.callback(t, submitted.Payment.ID, callbackSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["updated"], "a repeated callback changes nothing")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID+"/status", tok, nil, &status))
	assert.Equal(t, fulfillment.Result{Status: order.StatusPaid, TicketsGenerated: true}, status)

	var tickets []query.TicketReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID+"/tickets", tok, nil, &tickets))
	assert.Len(t, tickets, 2)

	var mine []query.OrderReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders", tok, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, string(order.StatusPaid), mine[0].Status)
}

func TestSubmitRejected(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, auth.Identity{UserID: "bob"})

	var o query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", tok, nil, &o))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/orders/"+o.ID+"/lines", tok,
		map[string]any{"item_id": "standard", "quantity": 5}, &o))

	var result command.SubmitResult
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/orders/"+o.ID+"/pay", tok, nil, &result))
	assert.False(t, result.IsValid)
	assert.Equal(t, order.StatusOngoing, result.Status)
	codes := make([]validation.Code, 0, len(result.Errors))
	for _, v := range result.Errors {
		codes = append(codes, v.Code)
	}
	assert.Equal(t, []validation.Code{validation.CodeItemMaxPerUserExceeded, validation.CodeGroupMaxPerUserExceeded}, codes)
	assert.Nil(t, result.Payment)
}

func TestOrderLineErrors(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, auth.Identity{UserID: "carol"})

	var o query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", tok, nil, &o))

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown item", map[string]any{"item_id": "ghost", "quantity": 1}, http.StatusNotFound},
		{"zero quantity", map[string]any{"item_id": "standard", "quantity": 0}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.do(t, http.MethodPost, "/orders/"+o.ID+"/lines", tok, tt.body, nil))
		})
	}

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/orders/"+o.ID+"/pay", tok, nil, nil), "empty order")
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/orders/"+o.ID+"/lines/ghost", tok, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/sales/nope/orders", tok, nil, nil))
}

func TestOwnershipAndAdmin(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.token(t, auth.Identity{UserID: "dave"})
	other := env.token(t, auth.Identity{UserID: "eve"})
	admin := env.token(t, auth.Identity{UserID: "root", Role: auth.RoleAdmin})

	var o query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", owner, nil, &o))

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/orders/"+o.ID, other, nil, nil))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/orders/"+o.ID+"/status", other, nil, nil))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", other, nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID, admin, nil, nil))

	var orders []query.OrderReadModel
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/users/dave/orders", other, nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/admin/users/dave/orders", admin, nil, &orders))
	assert.Len(t, orders, 1)

	var cancelled query.OrderReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", owner,
		map[string]string{"reason": "changed my mind"}, &cancelled))
	assert.Equal(t, string(order.StatusCancelled), cancelled.Status)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", owner, nil, nil))
}

func TestTicketFields(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, auth.Identity{UserID: "grace"})
	admin := env.token(t, auth.Identity{UserID: "root", Role: auth.RoleAdmin})

	var o query.OrderReadModel
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/sales/gala/orders", tok, nil, &o))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/orders/"+o.ID+"/lines", tok,
		map[string]any{"item_id": "standard", "quantity": 1}, &o))
	var submitted command.SubmitResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/orders/"+o.ID+"/pay", tok, nil, &submitted))
	code, _ := env.callback(t, submitted.Payment.ID, callbackSecret)
	require.Equal(t, http.StatusOK, code)

	var tickets []query.TicketReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/orders/"+o.ID+"/tickets", tok, nil, &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, []query.TicketFieldReadModel{
		{ID: "attendee", Name: "Attendee", Type: "text", Editable: true},
		{ID: "diet", Name: "Diet", Type: "text", Value: "none"},
	}, tickets[0].Fields)

	path := "/orders/" + o.ID + "/tickets/" + tickets[0].ID + "/fields/"
	var ticket query.TicketReadModel
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, path+"attendee", tok, map[string]string{"value": "Grace Hopper"}, &ticket))
	assert.Equal(t, "Grace Hopper", ticket.Fields[0].Value)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPut, path+"diet", tok, map[string]string{"value": "vegan"}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, path+"shoe-size", tok, map[string]string{"value": "42"}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/orders/"+o.ID+"/tickets/ghost/fields/attendee", tok,
		map[string]string{"value": "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, path+"attendee", tok, "not an object", nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, path+"diet", admin, map[string]string{"value": "vegan"}, &ticket))
	assert.Equal(t, "vegan", ticket.Fields[1].Value)
}

func TestPaymentCallbackErrors(t *testing.T) {
	env := newAPIEnv(t)
	tx, err := env.gateway.CreateTransaction(context.Background(), payment.Checkout{OrderID: "missing-order"})
	require.NoError(t, err)

	code, _ := env.callback(t, tx.ID, "wrong-secret-0123456789")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.callback(t, "unknown-tx", callbackSecret)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.callback(t, tx.ID, callbackSecret)
	assert.Equal(t, http.StatusNotFound, code, "the order behind the transaction does not exist")
}

func TestMe(t *testing.T) {
	env := newAPIEnv(t)

	var me MeResponse
	tok := env.token(t, auth.Identity{UserID: "frank", Email: "frank@example.com", UserType: "student"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/me", tok, nil, &me))
	assert.Equal(t, MeResponse{ID: "frank", Email: "frank@example.com", UserType: "student"}, me)

	env.profiles.Put(profile.Local{UserID: "frank", FirstName: "Frank", LastName: "Herbert", UserType: "alumni"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/me", tok, nil, &me))
	assert.Equal(t, "Frank Herbert", me.Name)
	assert.Equal(t, "alumni", me.UserType)
	assert.Equal(t, "frank@example.com", me.Email)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{order.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", sale.ErrItemNotFound), http.StatusNotFound},
		{command.ErrNotOwner, http.StatusForbidden},
		{order.ErrInvalidTransition, http.StatusConflict},
		{order.ErrOrderLocked, http.StatusConflict},
		{store.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{order.ErrEmptyOrder, http.StatusBadRequest},
		{command.ErrItemNotInSale, http.StatusBadRequest},
		{&validation.ValidationError{Violation: validation.Violation{Code: validation.CodeSaleInactive}}, http.StatusUnprocessableEntity},
		{payment.ErrInvalidSignature, http.StatusUnauthorized},
		{order.ErrTicketNotFound, http.StatusNotFound},
		{sale.ErrFieldNotFound, http.StatusNotFound},
		{sale.ErrFieldNotEditable, http.StatusConflict},
		{fmt.Errorf("%w: email", sale.ErrInvalidFieldValue), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
