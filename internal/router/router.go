// Package router wires the HTTP surface together.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront/internal/handler"
	"storefront/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Health    *handler.HealthHandler
	Cart      *handler.CartHandler
	Order     *handler.OrderHandler
	Wallet    *handler.WalletHandler
	Inventory *handler.InventoryHandler
	Webhook   *handler.WebhookHandler
}

// New builds the router. Health and the gateway webhook sit outside the
// identity middleware: the former is for probes, the latter authenticates
// by HMAC signature.
func New(h Handlers, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS)

	r.Get("/health", h.Health.Check)
	r.Post("/webhooks/payment", h.Webhook.HandlePayment)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.Get)
			r.Delete("/", h.Cart.Clear)
			r.Post("/items", h.Cart.AddItem)
			r.Delete("/items/{productID}", h.Cart.RemoveItem)
		})

		r.Post("/checkout", h.Order.Checkout)

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", h.Order.Get)
			r.Post("/cancel", h.Order.Cancel)
			r.Post("/payment-intent", h.Order.CreateIntent)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", h.Wallet.WalletBalance)
			r.Get("/history", h.Wallet.WalletHistory)
			r.Post("/deposit", h.Wallet.Deposit)
			r.Post("/transfer", h.Wallet.Transfer)
		})

		r.Route("/points", func(r chi.Router) {
			r.Get("/balance", h.Wallet.PointsBalance)
			r.Get("/history", h.Wallet.PointsHistory)
		})

		r.Get("/products/{productID}/availability", h.Inventory.Availability)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Patch("/orders/{orderID}/status", h.Order.UpdateStatus)
			r.Put("/inventory", h.Inventory.Adjust)
			r.Get("/inventory/{productID}/{branchID}", h.Inventory.GetRecord)
		})
	})

	return r
}
