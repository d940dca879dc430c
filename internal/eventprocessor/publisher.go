// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/metrics"
)

// NewNATSPublisher creates a Watermill NATS publisher with reconnection
// handling. With JetStream enabled, message IDs are tracked for
// deduplication and the stream must already exist (see EnsureStream).
func NewNATSPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: false,
			TrackMsgId:    cfg.JetStream,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// ResultPublisher publishes engine output through a circuit breaker. It is
// a detection.ResultSink, a detection.CorrelationSink and a
// detection.Notifier, so one instance is registered for all three.
type ResultPublisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
	cfg       Config
	mu        sync.RWMutex
	closed    bool
}

// NewResultPublisher wraps pub. The circuit breaker is built from
// cfg.Breaker.
func NewResultPublisher(pub message.Publisher, cfg Config) (*ResultPublisher, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: publisher", ErrNilDependency)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ResultPublisher{
		publisher: pub,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		cfg:       cfg,
	}, nil
}

// Name identifies the publisher in logs and metrics.
func (p *ResultPublisher) Name() string {
	return "nats"
}

// Enabled reports whether alerts are published.
func (p *ResultPublisher) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.PublishAlerts && !p.closed
}

// WriteResult publishes r to the identifier's result topic.
func (p *ResultPublisher) WriteResult(ctx context.Context, r *detection.BatchResult) error {
	if !p.cfg.PublishResults {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal batch result: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataKind, KindResult)
	msg.Metadata.Set(MetadataIdentifier, r.Identifier.String())
	msg.Metadata.Set(MetadataSequence, strconv.FormatUint(r.Sequence, 10))
	return p.Publish(ctx, p.cfg.ResultTopic(r.Identifier.String()), msg)
}

// WriteCorrelation publishes c to the correlations topic.
func (p *ResultPublisher) WriteCorrelation(ctx context.Context, c *detection.CorrelationResult) error {
	if !p.cfg.PublishResults || p.cfg.CorrelationsTopic == "" {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal correlation result: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataKind, KindCorrelation)
	msg.Metadata.Set(MetadataIdentifier, c.A.String()+"/"+c.B.String())
	return p.Publish(ctx, p.cfg.CorrelationsTopic, msg)
}

// Send publishes an alert. The alert UUID doubles as the message ID so
// JetStream drops redeliveries of the same alert.
func (p *ResultPublisher) Send(ctx context.Context, alert *detection.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	id := alert.UUID
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetadataKind, KindAlert)
	msg.Metadata.Set(MetadataIdentifier, alert.Identifier.String())
	return p.Publish(ctx, p.cfg.AlertsTopic, msg)
}

// Publish sends msg to topic with circuit breaker protection. The message
// UUID is used as Nats-Msg-Id if none is set.
func (p *ResultPublisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	msg.SetContext(ctx)

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.RecordNATSPublishFailure(topic)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.RecordNATSPublish(topic)
	return nil
}

// BreakerState returns the circuit breaker state name.
func (p *ResultPublisher) BreakerState() string {
	return CircuitBreakerState(p.breaker)
}

// Close shuts down the underlying publisher. It is safe to call twice.
func (p *ResultPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

var (
	_ detection.ResultSink      = (*ResultPublisher)(nil)
	_ detection.CorrelationSink = (*ResultPublisher)(nil)
	_ detection.Notifier        = (*ResultPublisher)(nil)
)
