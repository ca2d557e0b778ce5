package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/model"
)

// ClickPublisher hands clicks to NATS JetStream for the ClickConsumer to record.
type ClickPublisher struct {
	js nats.JetStreamContext
}

func NewClickPublisher(js nats.JetStreamContext) *ClickPublisher {
	return &ClickPublisher{js: js}
}

// Track publishes the click to the clicks subject.
func (p *ClickPublisher) Track(ctx context.Context, in analytics.ClickInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode click: %w", err)
	}
	if _, err := p.js.Publish(model.ClickStreamSubject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish click: %w", err)
	}
	return nil
}
