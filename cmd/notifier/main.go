package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/application"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/config"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/kafka"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

// The notifier worker turns terminal order events into buyer notices. Mail
// delivery is external; the notice is logged for the mail relay to pick up.
func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Init("info")
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LOG_LEVEL)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = kafka.StartConsumer(ctx, deliver, kafka.ConsumerConfig{
		Brokers: cfg.KAFKA_BROKERS,
		Topic:   cfg.KAFKA_TOPIC,
		GroupID: cfg.KAFKA_GROUP_ID,
	})
	if err != nil {
		logger.Error("kafka consumer start failed", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("notifier stopped")
}

func deliver(_ context.Context, ev domain.OrderEvent) error {
	n, ok := application.TerminalNotice(ev)
	if !ok {
		logger.Info("no buyer email, notice skipped", "reference", ev.ReferenceCode, "status", ev.Status)
		return nil
	}
	logger.Info("buyer notice", "reference", ev.ReferenceCode, "to", n.To, "subject", n.Subject, "body", n.Body)
	return nil
}
