package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/api/middleware"
	"github.com/example/ticket-shotgun/internal/auth"
)

const defaultTimeout = 30 * time.Second

type RouterConfig struct {
	Handlers        *Handlers
	ProfileHandlers *ProfileHandlers
	PaymentHandlers *PaymentHandlers
	JWTService      *auth.JWTService
	// CallbackSecretHash guards the payment callback; empty disables the check.
	CallbackSecretHash string
	Logger             *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger(cfg.Logger),
		chimw.Recoverer,
		chimw.Timeout(defaultTimeout),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h := cfg.Handlers

	// Public catalogue
	r.Get("/sales", h.GetSales)
	r.Get("/sales/{saleID}", h.GetSale)

	// Payment gateway callbacks
	if cfg.PaymentHandlers != nil {
		r.With(middleware.CallbackSecret(cfg.CallbackSecretHash)).
			Post("/payments/{transactionID}/callback", cfg.PaymentHandlers.Callback)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWTService))

		if cfg.ProfileHandlers != nil {
			r.Get("/me", cfg.ProfileHandlers.Me)
		}

		r.Post("/sales/{saleID}/orders", h.StartOrder)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.GetOrders)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Post("/lines", h.AddOrderLine)
				r.Delete("/lines/{lineID}", h.RemoveOrderLine)
				r.Get("/validation", h.ValidateOrder)
				r.Post("/pay", h.SubmitOrder)
				r.Get("/status", h.OrderStatus)
				r.Post("/cancel", h.CancelOrder)
				r.Get("/tickets", h.GetTickets)
				r.Put("/tickets/{ticketID}/fields/{fieldID}", h.UpdateTicketField)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/users/{userID}/orders", h.GetUserOrders)
		})
	})

	return r
}
