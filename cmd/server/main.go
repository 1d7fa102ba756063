// Command server is the channel-sync process: it wires the rate
// limiter, circuit breaker, platform adapters, sync engine, webhook
// ingress, reservation flow, and scheduler together and serves the two
// HTTP surfaces of spec.md §6 plus /metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/circuit"
	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"github.com/kolibri-visions/channel-sync/internal/eventstream"
	"github.com/kolibri-visions/channel-sync/internal/logging"
	"github.com/kolibri-visions/channel-sync/internal/metrics"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/kolibri-visions/channel-sync/internal/ratelimit"
	"github.com/kolibri-visions/channel-sync/internal/reservation"
	"github.com/kolibri-visions/channel-sync/internal/scheduler"
	"github.com/kolibri-visions/channel-sync/internal/store"
	"github.com/kolibri-visions/channel-sync/internal/sync"
	"github.com/kolibri-visions/channel-sync/internal/webhook"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Config{
		ServiceName: "channel-sync",
		Environment: cfg.Environment,
	})
	defer logger.Sync()

	db, err := store.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	coord, err := coordination.Connect(cfg.Redis)
	if err != nil {
		logger.Fatal("connect to coordination store", zap.Error(err))
	}
	defer coord.Close()

	promReg := prometheus.NewRegistry()
	reg := metrics.New(promReg)

	limiter := ratelimit.New(coord.Raw(), logger, cfg.RateLimit).WithMetrics(reg)
	breaker := circuit.New(coord.Raw(), logger, cfg.CircuitBreaker).WithMetrics(reg)

	httpClient := resty.New().SetTimeout(30 * time.Second)
	jwksCache := cache.New(1*time.Hour, 10*time.Minute)
	adapterFactory := sync.NewAdapterFactory(httpClient, cfg.Channels, jwksCache)

	engine := sync.NewEngine(db.DB, coord, limiter, breaker, adapterFactory, logger)
	tokenRefresher := sync.NewTokenRefresher(httpClient, cfg.Channels, engine, logger)
	engine.WithTokenRefresher(tokenRefresher)

	producer := eventstream.NewProducer(coord.Raw())
	consumer := eventstream.NewConsumer(coord.Raw(), logger, cfg.WorkerID)

	paymentClient := reservation.NewRESTPaymentClient(httpClient, "https://api.stripe.com", cfg.Payment.APIKey)
	flow := reservation.NewFlow(db.DB, coord, paymentClient, producer, logger)

	sched := scheduler.New(engine, tokenRefresher, flow, consumer, logger)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	if err := sched.Start(schedCtx); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	channelVerifiers := adaptersForVerification(httpClient, cfg.Channels, jwksCache)

	router := mux.NewRouter()

	webhookRouter := webhook.NewRouter(engine, db.DB, coord, cfg.Channels, cfg.RequireWebhookSignature, channelVerifiers, logger).WithMetrics(reg)
	webhookRouter.Mount(router)

	reservationRouter := reservation.NewRouter(flow, logger)
	reservationRouter.Mount(router)

	stripeHandler := reservation.NewStripeWebhookHandler(flow, coord, cfg.Payment.WebhookSecret, logger)
	router.Handle("/api/v1/webhooks/stripe", stripeHandler).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("channel-sync listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}

// adaptersForVerification builds one Adapter instance per channel kind
// purely for webhook signature verification / event parsing, since those
// methods don't depend on any particular connection's access token.
func adaptersForVerification(client *resty.Client, creds config.ChannelCredentials, jwksCache *cache.Cache) map[models.ChannelKind]adapters.Adapter {
	return map[models.ChannelKind]adapters.Adapter{
		models.ChannelAirbnb:     adapters.NewAirbnb(client, "https://api.airbnb.com/v2", ""),
		models.ChannelBookingCom: adapters.NewBookingCom(client, "https://distribution-xml.booking.com/2.9/ari", "https://supply-xml.booking.com/reservations", "", ""),
		models.ChannelExpedia:    adapters.NewExpedia(client, "https://api.expediapartnercentral.com/v1", ""),
		models.ChannelFewoDirekt: adapters.NewFewo(client, "https://api.fewo-direkt.com/v1", ""),
		models.ChannelGoogle:     adapters.NewGoogle(client, "https://travelpartner.googleapis.com/v3", "https://hotelcenter.googleapis.com/v1", "", creds.GoogleJWKSURL, jwksCache),
	}
}
