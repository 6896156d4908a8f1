package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/http/middleware"
	"chargegrid/backend/services/slots-service/internal/models"
)

// Routes aggregates handlers for HTTP server. Nil handlers are not mounted.
type Routes struct {
	Health  http.HandlerFunc
	Metrics http.Handler
	Feed    http.HandlerFunc

	Login   http.HandlerFunc
	GetUser http.HandlerFunc

	ProviderSlots       http.HandlerFunc
	StationStatus       http.HandlerFunc
	StationsByPostal    http.HandlerFunc
	LatestReservations  http.HandlerFunc
	EnergyPaymentStats  http.HandlerFunc
	BookedReservations  http.HandlerFunc
	ReservationHistory  http.HandlerFunc
	ChargingInfo        http.HandlerFunc
	PaymentWebhook      http.HandlerFunc
	CancelPayment       http.HandlerFunc

	AddSlot       http.HandlerFunc
	UpdateSlot    http.HandlerFunc
	DeleteSlot    http.HandlerFunc
	CreatePayment http.HandlerFunc
}

// NewRouter wires all HTTP routes. Slot mutations require an EnergyProvider token and
// checkout requires an EVOwner token.
func NewRouter(routes Routes, tokens middleware.TokenValidator, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.RecoveryMiddleware(logger))

	mount(r, http.MethodGet, "/health", routes.Health)
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}
	mount(r, http.MethodGet, "/ws/slots", routes.Feed)

	r.Route("/api", func(api chi.Router) {
		if requestTimeout > 0 {
			api.Use(chimw.Timeout(requestTimeout))
		}

		mount(api, http.MethodPost, "/login", routes.Login)
		mount(api, http.MethodGet, "/user/{email}", routes.GetUser)
		mount(api, http.MethodGet, "/ev-owner-reservations/{providerID}", routes.LatestReservations)
		mount(api, http.MethodGet, "/energy-payment-stats/{providerID}", routes.EnergyPaymentStats)
		mount(api, http.MethodGet, "/reservations/{ownerID}", routes.BookedReservations)
		mount(api, http.MethodGet, "/history/{ownerID}", routes.ReservationHistory)
		mount(api, http.MethodGet, "/reservations_with_charging_info/{ownerID}", routes.ChargingInfo)
		mount(api, http.MethodPost, "/payments/webhook", routes.PaymentWebhook)
		mount(api, http.MethodGet, "/payments/cancel", routes.CancelPayment)

		api.Route("/charging-slots", func(slots chi.Router) {
			mount(slots, http.MethodPost, "/get_stations", routes.StationsByPostal)
			mount(slots, http.MethodGet, "/slots/{providerID}", routes.StationStatus)

			slots.Group(func(provider chi.Router) {
				provider.Use(middleware.AuthMiddleware(tokens))
				provider.Use(middleware.RequireRole(models.RoleEnergyProvider))
				mount(provider, http.MethodPost, "/add/{providerID}", routes.AddSlot)
				mount(provider, http.MethodPut, "/update", routes.UpdateSlot)
				mount(provider, http.MethodDelete, "/delete", routes.DeleteSlot)
			})
			slots.Group(func(owner chi.Router) {
				owner.Use(middleware.AuthMiddleware(tokens))
				owner.Use(middleware.RequireRole(models.RoleEVOwner))
				mount(owner, http.MethodPost, "/create_payment", routes.CreatePayment)
			})

			mount(slots, http.MethodGet, "/{providerID}", routes.ProviderSlots)
		})
	})

	return r
}

func mount(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	if handler != nil {
		r.Method(method, pattern, handler)
	}
}
