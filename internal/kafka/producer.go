package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

// Producer publishes terminal order events, keyed by reference code so all
// events of one order land on one partition.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokersSTR, topic string) *Producer {
	brokers := strings.Split(brokersSTR, ",")

	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// NotifyTerminal implements application.Notifier.
func (p *Producer) NotifyTerminal(ctx context.Context, o *domain.Order) error {
	msg, err := encodeEvent(domain.NewOrderEvent(o))
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func encodeEvent(ev domain.OrderEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.ReferenceCode),
		Value: b,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte("order." + strings.ToLower(string(ev.Status)))},
		},
	}, nil
}
