package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-be/internal/async"
	"storefront-be/internal/cache"
	"storefront-be/internal/config"
	"storefront-be/internal/db"
	"storefront-be/internal/events"
	"storefront-be/internal/handler"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/webhook"
	"storefront-be/internal/product"
	"storefront-be/internal/settlement"
	"storefront-be/internal/stock"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

// handlers are the route targets setupRouter mounts.
type handlers struct {
	CreateOrder         http.HandlerFunc
	GetOrder            http.HandlerFunc
	CancelOrder         http.HandlerFunc
	PaymentStatus       http.HandlerFunc
	InitiatePayment     http.HandlerFunc
	RazorpayCreateOrder http.HandlerFunc
	PhonePeWebhook      http.HandlerFunc
	RazorpayVerify      http.HandlerFunc
	Metrics             http.HandlerFunc
}

func setupRouter(cfg *config.Config, h handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.Auth(cfg.JWTSecret))
	r.Use(middleware.RateLimit(cfg.InternalKey))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/metrics", h.Metrics)

	// Gateways and the status page call these without a session.
	r.Get("/payments/status/{orderId}", h.PaymentStatus)
	r.Get("/payments/webhook", h.PhonePeWebhook)
	r.Post("/payments/webhook", h.PhonePeWebhook)
	r.Post("/payments/razorpay-verify", h.RazorpayVerify)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
		r.Post("/payments/initiate", h.InitiatePayment)
		r.Post("/payments/razorpay-create-order", h.RazorpayCreateOrder)
	})

	return r
}

// server is the wired application: its router plus the background pieces
// run() has to start and stop.
type server struct {
	http.Handler
	runner  *async.Runner
	stock   *stock.Manager
	closers []func() error
}

func newServer(cfg *config.Config, database *sql.DB) *server {
	registry := metrics.NewRegistry()
	runner := async.NewRunner(8, 5*time.Second)
	s := &server{runner: runner}

	var statusCache cache.StatusCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		statusCache = cache.NewStatusCache(rdb)
		s.closers = append(s.closers, rdb.Close)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024)
		s.closers = append(s.closers, publisher.Close)
	}

	orderRepo := order.NewRepository(database)
	s.stock = stock.NewManager(stock.NewRepository(database), cfg.Checkout.ReservationTTL, &registry.Reservations)

	orderSvc := order.NewService(order.Deps{
		Repo:      orderRepo,
		Products:  product.NewRepository(database),
		Stock:     s.stock,
		Runner:    runner,
		Publisher: publisher,
		Cache:     statusCache,
		Billing: order.BillingConfig{
			ShippingFlatRate:      cfg.Checkout.ShippingFlatRate,
			FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		},
	})

	gateways := []payment.Gateway{
		payment.NewPhonePeGateway(cfg.PhonePe),
		payment.NewRazorpayGateway(cfg.Razorpay),
	}
	bridge := payment.NewBridge(orderRepo, runner, gateways...)

	ledger := payment.NewRepository(database)
	settler := settlement.NewService(settlement.Deps{
		Orders:    orderRepo,
		Ledger:    ledger,
		Stock:     s.stock,
		Gateways:  gateways,
		Runner:    runner,
		Publisher: publisher,
		Cache:     statusCache,
		Metrics:   &registry.Settlement,
	})

	orderH := handler.NewOrderHandler(orderSvc, ledger)
	paymentH := handler.NewPaymentHandler(bridge)
	webhookH := webhook.NewWebhookHandler(settler, cfg.StatusPageURL())

	s.Handler = setupRouter(cfg, handlers{
		CreateOrder:         orderH.CreateOrder,
		GetOrder:            orderH.GetOrder,
		CancelOrder:         orderH.CancelOrder,
		PaymentStatus:       orderH.PaymentStatus,
		InitiatePayment:     paymentH.Initiate,
		RazorpayCreateOrder: paymentH.RazorpayCreateOrder,
		PhonePeWebhook:      webhookH.PhonePeWebhook,
		RazorpayVerify:      webhookH.RazorpayVerify,
		Metrics:             registry.Handler(),
	})
	return s
}

// close waits for in-flight best-effort tasks, then releases clients they
// may still be using.
func (s *server) close() {
	s.runner.Wait()
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.L().Warn("close failed", zap.Error(err))
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newServer(cfg, database)
	defer s.close()

	go s.runner.Drain(ctx)
	if cfg.Checkout.ReservationSweep > 0 {
		go s.stock.RunSweeper(ctx, cfg.Checkout.ReservationSweep)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}
