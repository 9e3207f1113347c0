// Package events reports issuance, introspection and revocation outcomes to
// an external sink.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"oauth2-tokenserver/pkg/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

// Event names
const (
	TokenIssuedSuccess        = "token_issued_success"
	TokenIssuedFailure        = "token_issued_failure"
	TokenIntrospectionSuccess = "token_introspection_success"
	TokenIntrospectionFailure = "token_introspection_failure"
	TokenRevocationSuccess    = "token_revocation_success"
)

// Event is one reported outcome
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Timestamp        time.Time `json:"timestamp"`
	ClientID         string    `json:"client_id,omitempty"`
	Resource         string    `json:"api_name,omitempty"`
	GrantType        string    `json:"grant_type,omitempty"`
	Subject          string    `json:"sub,omitempty"`
	Scopes           []string  `json:"scopes,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
	Active           *bool     `json:"active,omitempty"`
	Error            string    `json:"error,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// New stamps an event with an id and the current time
func New(name string) *Event {
	return &Event{
		ID:        ksuid.New().String(),
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives events. Publishing failures never affect the request.
type Sink interface {
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, ev *Event) error { return nil }
func (NopSink) Close() error { return nil }

// LogSink writes events to the log
type LogSink struct {
	Log *logrus.Logger
}

// Publish logs the event at info level, failures at warn level
func (s *LogSink) Publish(ctx context.Context, ev *Event) error {
	entry := s.Log.WithFields(logrus.Fields{
		"event":      ev.Name,
		"event_id":   ev.ID,
		"client_id":  ev.ClientID,
		"grant_type": ev.GrantType,
		"api_name":   ev.Resource,
		"sub":        ev.Subject,
	})
	if ev.Error != "" {
		entry.WithField("error", ev.Error).Warnf("📣 %s: %s", ev.Name, ev.ErrorDescription)
		return nil
	}
	entry.Infof("📣 %s", ev.Name)
	return nil
}

func (s *LogSink) Close() error { return nil }

// AMQPSink publishes events as JSON messages to a topic exchange. The routing
// key is the configured prefix followed by the event name.
type AMQPSink struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

// NewAMQPSink connects to the broker and declares the exchange
func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Publish sends the event as a persistent JSON message
func (s *AMQPSink) Publish(ctx context.Context, ev *Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.PublishWithContext(ctx,
		s.exchange,
		s.routingKey+"."+ev.Name,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.Timestamp,
			Body:         body,
		},
	)
}

// Close shuts the channel and the connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

// NewSink builds the sink selected in the configuration
func NewSink(cfg config.EventsConfig, log *logrus.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "none":
		return NopSink{}, nil
	case "log":
		return &LogSink{Log: log}, nil
	case "amqp":
		sink, err := NewAMQPSink(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
		if err != nil {
			return nil, err
		}
		log.Infof("📣 Publishing events to exchange %s", cfg.Exchange)
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported event sink: %s", cfg.Sink)
	}
}

// Raiser publishes events without letting sink failures reach the caller
type Raiser struct {
	Sink    Sink
	Timeout time.Duration
	Log     *logrus.Logger
}

// NewRaiser wraps sink; a nil sink drops events
func NewRaiser(sink Sink, log *logrus.Logger) *Raiser {
	if sink == nil {
		sink = NopSink{}
	}
	return &Raiser{Sink: sink, Timeout: 2 * time.Second, Log: log}
}

// Raise publishes ev on a context detached from the request
func (r *Raiser) Raise(ctx context.Context, ev *Event) {
	if _, nop := r.Sink.(NopSink); nop {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Timeout)
	defer cancel()
	if err := r.Sink.Publish(ctx, ev); err != nil {
		r.Log.Warnf("⚠️ Failed to publish event %s: %v", ev.Name, err)
	}
}
