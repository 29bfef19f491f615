package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
}

// HandlerFunc processes one order event. Errors are retried with backoff; the
// offset is committed only after the handler succeeds.
type HandlerFunc func(ctx context.Context, ev domain.OrderEvent) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type consumer struct {
	r       messageReader
	handle  HandlerFunc
	backoff func() retry.Backoff
}

func newConsumer(r messageReader, handle HandlerFunc) *consumer {
	return &consumer{
		r:      r,
		handle: handle,
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(10*time.Second, retry.NewExponential(300*time.Millisecond))
		},
	}
}

func decodeEvent(m kafka.Message) (domain.OrderEvent, error) {
	var ev domain.OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, err
	}
	if ev.ReferenceCode == "" || !ev.Status.Terminal() {
		return ev, errors.New("not a terminal order event")
	}
	return ev, nil
}

// StartConsumer reads order events from cfg.Topic in a goroutine until ctx is done.
func StartConsumer(ctx context.Context, handle HandlerFunc, cfg ConsumerConfig) (*kafka.Reader, error) {
	if cfg.Brokers == "" || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         strings.Split(cfg.Brokers, ","),
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)
	go newConsumer(r, handle).run(ctx)
	return r, nil
}

func (c *consumer) run(ctx context.Context) {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if err := c.process(ctx, m); err != nil {
			// only a canceled context stops processing
			return
		}
	}
}

func (c *consumer) process(ctx context.Context, m kafka.Message) error {
	ev, err := decodeEvent(m)
	if err != nil {
		logger.Warn("kafka invalid order event, skip and commit", "partition", m.Partition, "offset", m.Offset, "err", err)
		return c.commit(ctx, m, "")
	}

	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		if herr := c.handle(ctx, ev); herr != nil {
			logger.Warn("order event handler failed, will retry", "reference", ev.ReferenceCode, "attempt", attempt, "err", herr)
			return retry.RetryableError(herr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.commit(ctx, m, ev.ReferenceCode)
}

func (c *consumer) commit(ctx context.Context, m kafka.Message, ref string) error {
	if err := c.r.CommitMessages(ctx, m); err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("[kafka] commit failed", "offset", m.Offset, "err", err)
		return nil
	}
	logger.Debug("[kafka] committed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "reference", ref)
	return nil
}
