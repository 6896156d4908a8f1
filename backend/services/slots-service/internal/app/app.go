package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chargegrid/backend/libs/db"
	libredis "chargegrid/backend/libs/redis"
	appconfig "chargegrid/backend/services/slots-service/internal/config"
	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/http"
	"chargegrid/backend/services/slots-service/internal/http/handlers"
	"chargegrid/backend/services/slots-service/internal/metrics"
	"chargegrid/backend/services/slots-service/internal/password"
	"chargegrid/backend/services/slots-service/internal/payment"
	"chargegrid/backend/services/slots-service/internal/repository"
	"chargegrid/backend/services/slots-service/internal/service"
	"chargegrid/backend/services/slots-service/internal/ws"
)

// App wires dependencies for the slots service.
type App struct {
	server     *httpserver.Server
	sweeper    *service.HoldSweeper
	subscriber *events.Subscriber
	hub        *ws.Hub
	feed       *ws.Server
	db         *sql.DB
	redis      *goredis.Client
	logger     *zap.Logger
}

// New builds application graph.
func New(cfg *appconfig.Config, logger *zap.Logger) (*App, error) {
	policy, err := service.ParseNumberingPolicy(cfg.Numbering.Policy)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.NewPostgresDB(cfg.Database.DSN, db.PoolOptions{MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	slotMetrics := metrics.New(registry)

	slotRepo := repository.NewSlotRepository(sqlDB)
	holdRepo := repository.NewHoldRepository(sqlDB)
	dashboardRepo := repository.NewDashboardRepository(sqlDB)
	userRepo := repository.NewUserRepository(sqlDB)

	publisher := events.NewRedisPublisher(redisClient, cfg.Redis.Channel)
	gateway := payment.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.BaseURL, cfg.Stripe.Timeout)

	allocator := service.NewSlotAllocator(slotRepo, publisher, slotMetrics, logger, service.AllocatorOptions{
		Policy:       policy,
		SlotLimit:    cfg.Numbering.MaxSlotsPerStation,
		StoreTimeout: cfg.Database.StoreTimeout,
	})
	coordinator := service.NewAvailabilityCoordinator(holdRepo, gateway, publisher, slotMetrics, logger, service.CoordinatorOptions{
		Currency:       cfg.Stripe.Currency,
		SuccessURL:     cfg.Stripe.SuccessURL,
		CancelURL:      cfg.Stripe.CancelURL,
		HoldTTL:        cfg.Holds.TTL,
		GatewayTimeout: cfg.Stripe.Timeout,
		StoreTimeout:   cfg.Database.StoreTimeout,
		SweepBatch:     cfg.Holds.SweepBatch,
	})
	mutations := service.NewSlotMutationService(slotRepo, publisher, logger, cfg.Database.StoreTimeout)
	dashboard := service.NewDashboardAggregator(dashboardRepo, logger, cfg.Database.StoreTimeout)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration())
	userSvc := service.NewUserService(userRepo, password.NewBcryptHasher(cfg.Password.BcryptCost), tokenSvc, logger)

	hub := ws.NewHub(logger)
	feed := ws.NewServer(hub, 10*time.Second, logger)

	routes := httpserver.Routes{
		Health:  handlers.NewHealthHandler(sqlDB),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Feed:    feed.HandleWS,

		Login:   handlers.NewLoginHandler(userSvc),
		GetUser: handlers.NewGetUserHandler(userSvc),

		ProviderSlots:      handlers.NewProviderSlotsHandler(dashboard),
		StationStatus:      handlers.NewStationStatusHandler(dashboard),
		StationsByPostal:   handlers.NewStationsByPostalCodeHandler(dashboard),
		LatestReservations: handlers.NewLatestReservationsHandler(dashboard),
		EnergyPaymentStats: handlers.NewEnergyPaymentStatsHandler(dashboard),
		BookedReservations: handlers.NewBookedReservationsHandler(dashboard),
		ReservationHistory: handlers.NewReservationHistoryHandler(dashboard),
		ChargingInfo:       handlers.NewChargingInfoHandler(dashboard),
		PaymentWebhook: handlers.NewPaymentWebhookHandler(coordinator, handlers.WebhookOptions{
			Secret: cfg.Stripe.WebhookSecret,
		}, logger),
		CancelPayment: handlers.NewCancelPaymentHandler(coordinator),

		AddSlot:       handlers.NewAddSlotHandler(allocator),
		UpdateSlot:    handlers.NewUpdateSlotHandler(mutations),
		DeleteSlot:    handlers.NewDeleteSlotHandler(mutations),
		CreatePayment: handlers.NewCreatePaymentHandler(coordinator),
	}

	router := httpserver.NewRouter(routes, tokenSvc, cfg.HTTP.RequestTimeout, logger)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:     server,
		sweeper:    service.NewHoldSweeper(coordinator, cfg.Holds.SweepInterval, logger),
		subscriber: events.NewSubscriber(redisClient, cfg.Redis.Channel, logger),
		hub:        hub,
		feed:       feed,
		db:         sqlDB,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// Run serves HTTP, sweeps expired holds and relays availability events until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	g.Go(func() error {
		return a.feed.Run(ctx)
	})
	g.Go(func() error {
		return a.sweeper.Run(ctx)
	})
	g.Go(func() error {
		return a.subscriber.Run(ctx, func(event events.SlotEvent) {
			a.hub.Broadcast(event)
		})
	})
	return g.Wait()
}

// Close releases acquired resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
