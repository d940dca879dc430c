// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/metrics"
)

// NewNATSSubscriber creates a Watermill NATS subscriber. With JetStream
// enabled it is a durable consumer bound to streamName; otherwise it uses a
// core NATS queue subscription.
func NewNATSSubscriber(cfg Config, streamName string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	js := wmNats.JetStreamConfig{Disabled: true}
	if cfg.JetStream {
		subOpts := []natsgo.SubOpt{
			natsgo.AckWait(cfg.AckWaitTimeout),
			natsgo.DeliverNew(),
		}
		autoProvision := true
		if streamName != "" {
			subOpts = append(subOpts, natsgo.BindStream(streamName))
			autoProvision = false
		}
		js = wmNats.JetStreamConfig{
			AutoProvision:    autoProvision,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		}
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        js,
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// FrameSink accepts decoded frames. *detection.Engine implements it.
type FrameSink interface {
	Submit(ctx context.Context, frame detection.Frame) error
}

// FrameSubscriber consumes frame messages and submits them to a FrameSink.
//
// Error handling:
//   - Malformed messages are acked and counted; redelivery cannot fix them
//   - Submission failures (the engine stopped or ctx ended) are nacked
type FrameSubscriber struct {
	subscriber message.Subscriber
	topic      string
	sink       FrameSink

	received    atomic.Int64
	submitted   atomic.Int64
	parseErrors atomic.Int64
	nacked      atomic.Int64
	lastMessage atomic.Value
}

// NewFrameSubscriber creates a subscriber for topic that feeds sink.
func NewFrameSubscriber(sub message.Subscriber, topic string, sink FrameSink) (*FrameSubscriber, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: subscriber", ErrNilDependency)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: frame sink", ErrNilDependency)
	}
	if topic == "" {
		topic = DefaultFramesTopic
	}
	s := &FrameSubscriber{subscriber: sub, topic: topic, sink: sink}
	s.lastMessage.Store(time.Time{})
	return s, nil
}

// Serve consumes messages until ctx is canceled or the subscription
// channel closes. It implements suture.Service.
func (s *FrameSubscriber) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	logging.Info().Str("topic", s.topic).Msg("Frame subscriber started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("topic", s.topic).Msg("Frame subscriber stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := s.Handle(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
				logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Frame submission failed")
			}
		}
	}
}

// Handle decodes one message and submits the frame, acking or nacking it.
func (s *FrameSubscriber) Handle(ctx context.Context, msg *message.Message) error {
	s.received.Add(1)
	s.lastMessage.Store(time.Now())

	frame, err := DecodeFrame(msg.Payload)
	if err != nil {
		s.parseErrors.Add(1)
		metrics.RecordNATSParseFailed()
		logging.Debug().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed frame message")
		msg.Ack()
		return nil
	}

	if err := s.sink.Submit(ctx, frame); err != nil {
		s.nacked.Add(1)
		msg.Nack()
		return err
	}

	s.submitted.Add(1)
	metrics.RecordNATSConsume()
	msg.Ack()
	return nil
}

// String names the service for the supervisor.
func (s *FrameSubscriber) String() string {
	return "frame-subscriber"
}

// Close closes the underlying subscriber.
func (s *FrameSubscriber) Close() error {
	return s.subscriber.Close()
}

// SubscriberStats holds runtime statistics.
type SubscriberStats struct {
	Received    int64
	Submitted   int64
	ParseErrors int64
	Nacked      int64
	LastMessage time.Time
}

// Stats returns current subscriber statistics.
func (s *FrameSubscriber) Stats() SubscriberStats {
	var last time.Time
	if t, ok := s.lastMessage.Load().(time.Time); ok {
		last = t
	}
	return SubscriberStats{
		Received:    s.received.Load(),
		Submitted:   s.submitted.Load(),
		ParseErrors: s.parseErrors.Load(),
		Nacked:      s.nacked.Load(),
		LastMessage: last,
	}
}
