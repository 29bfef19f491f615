package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/application"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/config"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/kafka"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/migrate"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/paypal"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/payu"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/presentation"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/pricing"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/repository"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/signature"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("info")
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LOG_LEVEL)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("order store init failed", "driver", cfg.STORE_DRIVER, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	prices := pricing.NewAuthority()
	opts := application.Options{Store: store, Prices: prices, NotifyTimeout: 10 * time.Second}

	if cfg.PayU.Enabled() {
		signer, err := signature.NewSigner(signature.Config{
			APIKey:     cfg.PayU.API_KEY,
			MerchantID: cfg.PayU.MERCHANT_ID,
			Algorithm:  cfg.PayU.SIGNATURE_ALGORITHM,
		})
		if err != nil {
			logger.Error("payu signer init failed", "err", err)
			os.Exit(1)
		}
		opts.PayU = payu.NewAdapter(payu.Config{
			AccountID:       cfg.PayU.ACCOUNT_ID,
			CheckoutURL:     cfg.PayU.CHECKOUT_URL,
			ResponseURL:     cfg.PayU.RESPONSE_URL,
			ConfirmationURL: cfg.PayU.CONFIRMATION_URL,
			Test:            cfg.PayU.TEST,
		}, signer)
		logger.Info("payu enabled", "merchant", cfg.PayU.MERCHANT_ID, "test", cfg.PayU.TEST)
	}
	if cfg.PayPal.Enabled() {
		opts.PayPal = paypal.NewClient(paypal.Config{
			BaseURL:        cfg.PayPal.BASE_URL,
			ClientID:       cfg.PayPal.CLIENT_ID,
			ClientSecret:   cfg.PayPal.CLIENT_SECRET,
			WebhookID:      cfg.PayPal.WEBHOOK_ID,
			ReturnURL:      cfg.PayPal.RETURN_URL,
			CancelURL:      cfg.PayPal.CANCEL_URL,
			Timeout:        cfg.PayPal.TIMEOUT,
			CaptureRetries: cfg.PayPal.CAPTURE_RETRIES,
		})
		logger.Info("paypal enabled", "base_url", cfg.PayPal.BASE_URL)
	}

	// Kafka producer for terminal order events
	if cfg.KAFKA_BROKERS != "" {
		prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_TOPIC)
		defer prod.Close()
		opts.Notifier = prod
		logger.Info("kafka notifier enabled", "brokers", cfg.KAFKA_BROKERS, "topic", cfg.KAFKA_TOPIC)
	} else {
		opts.Notifier = application.LogNotifier{}
	}

	svc := application.NewCoordinator(opts)
	limiter := presentation.NewIPRateLimiter(cfg.RATE_LIMIT_RPS, cfg.RATE_LIMIT_BURST)
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Cleanup(30 * time.Minute)
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(presentation.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	presentation.NewOrdersHandler(svc, prices, limiter).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting http", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	svc.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.STORE_DRIVER == config.DriverBolt {
		s, err := repository.NewBoltStore(cfg.BOLT_PATH)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("bolt store opened", "path", cfg.BOLT_PATH)
		return s, func() { _ = s.Close() }, nil
	}

	if err := migrate.Up(ctx, cfg.DB_STRING); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DB_STRING)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("db connected")
	return repository.NewOrderRepository(pool), pool.Close, nil
}
