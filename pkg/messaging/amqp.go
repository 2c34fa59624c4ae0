package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/redact"
	"github.com/harunnryd/stella/pkg/resilience"
	"github.com/streadway/amqp"
)

type Config struct {
	URL          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange_type"`
	RoutingKey   string `mapstructure:"routing_key_prefix"`
	DialRetries  int    `mapstructure:"dial_retries"`
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "stella.events"
	}
	if c.ExchangeType == "" {
		c.ExchangeType = amqp.ExchangeTopic
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "stella"
	}
	if c.DialRetries <= 0 {
		c.DialRetries = 3
	}
	return c
}

// EventMessage is the JSON body published for each relay event.
type EventMessage struct {
	Event     string            `json:"event"`
	CallID    string            `json:"call_id,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(cfg Config) (publishChannel, func() error, error)

// Publisher forwards relay events to a topic exchange so downstream systems
// (billing, QA, transcripts) can consume them. Routing keys are
// <prefix>.<event>.
type Publisher struct {
	cfg  Config
	log  *slog.Logger
	dial dialFunc

	mu        sync.Mutex
	channel   publishChannel
	closeConn func() error
}

func NewPublisher(cfg Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{cfg: cfg.withDefaults(), log: log, dial: dialAMQP}
}

func dialAMQP(cfg Config) (publishChannel, func() error, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// Connect dials the broker, retrying with backoff.
func (p *Publisher) Connect(ctx context.Context) error {
	if strings.TrimSpace(p.cfg.URL) == "" {
		return errorsx.Configf("events.amqp.url is required")
	}
	policy := resilience.NewRetryPolicy(p.cfg.DialRetries, 500*time.Millisecond)
	return policy.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return p.connect()
	})
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.cfg)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("amqp dial: %w", err), errorsx.ReasonEventPublish)
	}
	p.channel = ch
	p.closeConn = closeConn
	p.log.Info("amqp_connected", "exchange", p.cfg.Exchange)
	return nil
}

// RoutingKey returns the routing key used for event.
func (p *Publisher) RoutingKey(event string) string {
	return p.cfg.RoutingKey + "." + event
}

// Publish sends one event. A failed publish drops the channel so the next
// call reconnects.
func (p *Publisher) Publish(ev metrics.MetricsEvent) error {
	body, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		return err
	}
	if err := p.connect(); err != nil {
		return err
	}
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()
	err = ch.Publish(p.cfg.Exchange, p.RoutingKey(ev.Name), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Time,
		Type:         ev.Name,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return errorsx.Wrap(fmt.Errorf("amqp publish: %w", err), errorsx.ReasonEventPublish)
	}
	return nil
}

// RecordEvent implements metrics.Observer; failures are logged.
func (p *Publisher) RecordEvent(ev metrics.MetricsEvent) {
	if err := p.Publish(ev); err != nil {
		p.log.Warn("amqp_publish_failed",
			"event", ev.Name,
			"call_id", ev.Tags[metrics.TagCallID],
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
	}
}

func (p *Publisher) reset() {
	p.mu.Lock()
	ch, closeConn := p.channel, p.closeConn
	p.channel, p.closeConn = nil, nil
	p.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
	if closeConn != nil {
		_ = closeConn()
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	ch, closeConn := p.channel, p.closeConn
	p.channel, p.closeConn = nil, nil
	p.mu.Unlock()
	var err error
	if ch != nil {
		err = errors.Join(err, ch.Close())
	}
	if closeConn != nil {
		err = errors.Join(err, closeConn())
	}
	return err
}

func encodeEvent(ev metrics.MetricsEvent) EventMessage {
	msg := EventMessage{
		Event:     ev.Name,
		CallID:    ev.Tags[metrics.TagCallID],
		TraceID:   ev.Tags[metrics.TagTraceID],
		Timestamp: ev.Time.UTC(),
		Value:     ev.Value,
		Tags:      ev.Tags,
	}
	if len(ev.Fields) > 0 {
		msg.Fields = make(map[string]any, len(ev.Fields))
		for k, v := range ev.Fields {
			if s, ok := v.(string); ok {
				v = redact.Text(s)
			}
			msg.Fields[k] = v
		}
	}
	return msg
}

var _ metrics.Observer = (*Publisher)(nil)
