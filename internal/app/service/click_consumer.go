package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/apperror"
	"github.com/sifan077/shortener/internal/app/model"
)

const (
	clickFetchBatch   = 10
	clickFetchMaxWait = 5 * time.Second
)

type disposition int

const (
	dispAck disposition = iota
	dispNak
	dispTerm
)

// ClickConsumer drains the clicks stream into the analytics service.
type ClickConsumer struct {
	js      nats.JetStreamContext
	tracker ClickTracker
	metrics Recorder
	logger  *zap.Logger
}

func NewClickConsumer(js nats.JetStreamContext, tracker ClickTracker, metrics Recorder, logger *zap.Logger) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &ClickConsumer{js: js, tracker: tracker, metrics: metrics, logger: logger.Named("click_consumer")}
}

// Start ensures the stream and durable consumer exist and consumes until ctx is done.
func (c *ClickConsumer) Start(ctx context.Context) error {
	if _, err := c.js.StreamInfo(model.ClickStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

func (c *ClickConsumer) consume(ctx context.Context, sub *nats.Subscription) {
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := sub.Fetch(clickFetchBatch, nats.MaxWait(clickFetchMaxWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Info("click consumer stopped", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var ackErr error
			switch c.process(ctx, msg.Data) {
			case dispAck:
				ackErr = msg.Ack()
			case dispNak:
				ackErr = msg.Nak()
			case dispTerm:
				ackErr = msg.Term()
			}
			if ackErr != nil {
				c.logger.Warn("failed to acknowledge click message", zap.Error(ackErr))
			}
		}
	}
}

// process records one click message. Malformed payloads are terminated,
// domain rejections are acknowledged and storage failures are redelivered.
func (c *ClickConsumer) process(ctx context.Context, data []byte) disposition {
	var in analytics.ClickInput
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Error("failed to unmarshal click", zap.Error(err))
		return dispTerm
	}

	err := c.tracker.Track(ctx, in)
	switch {
	case err == nil:
		c.logger.Debug("click recorded",
			zap.String("short_url", in.ShortURL),
			zap.String("ip", in.IP),
			zap.Time("timestamp", in.Timestamp))
		return dispAck
	case apperror.Is(err, apperror.CodeNotFound), apperror.Is(err, apperror.CodeExpired):
		c.metrics.ClickTrackingFailed()
		c.logger.Warn("click dropped", zap.String("short_url", in.ShortURL), zap.Error(err))
		return dispAck
	default:
		c.metrics.ClickTrackingFailed()
		c.logger.Error("failed to record click", zap.String("short_url", in.ShortURL), zap.Error(err))
		return dispNak
	}
}
