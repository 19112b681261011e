// Package relay forwards swarm broadcasts to external chat and streaming
// systems. Mailbox delivery is already durable by the time a broadcast is
// published, so forwarding here is best-effort: a failing sink is logged and
// the relay moves on.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dyluth/swarm/internal/config"
	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/sirupsen/logrus"
)

// DefaultSendTimeout bounds a single sink delivery.
const DefaultSendTimeout = 10 * time.Second

// Sink is an external destination for broadcasts.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev *blackboard.BroadcastEvent) error
	Close() error
}

// Options configures a Relay.
type Options struct {
	SendTimeout time.Duration
	Logger      *logrus.Entry
}

// Relay subscribes to the broadcast channel and fans each event out to its sinks.
type Relay struct {
	client      *blackboard.Client
	sinks       []Sink
	sendTimeout time.Duration
	log         *logrus.Entry
}

// New creates a Relay over the given sinks.
func New(client *blackboard.Client, sinks []Sink, opts Options) *Relay {
	r := &Relay{
		client:      client,
		sinks:       sinks,
		sendTimeout: opts.SendTimeout,
		log:         opts.Logger,
	}
	if r.sendTimeout <= 0 {
		r.sendTimeout = DefaultSendTimeout
	}
	if r.log == nil {
		r.log = logging.New("relay", client.Instance())
	}
	return r
}

// SinksFromConfig builds the sinks enabled in cfg.
func SinksFromConfig(cfg config.RelayConfig, httpClient *http.Client) ([]Sink, error) {
	var sinks []Sink
	if cfg.SlackEnabled() {
		sinks = append(sinks, NewSlackSink(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackAPIURL, httpClient))
	}
	if cfg.KafkaEnabled() {
		if cfg.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka topic is required")
		}
		sinks = append(sinks, NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if cfg.AMQPEnabled() {
		if cfg.AMQPQueue == "" {
			return nil, fmt.Errorf("amqp queue is required")
		}
		sink, err := NewAMQPSink(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			for _, s := range sinks {
				s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// Run subscribes and forwards events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.client.SubscribeBroadcasts(ctx)
	if err != nil {
		return blackboard.Storage("relay", err)
	}
	return r.Serve(ctx, sub)
}

// Serve forwards events from an existing subscription until ctx is cancelled
// or the subscription ends. The subscription is closed on return.
func (r *Relay) Serve(ctx context.Context, sub *blackboard.Subscription) error {
	defer sub.Close()

	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	logging.Event(r.log, "relay_started", logrus.Fields{"sinks": strings.Join(names, ",")})

	events := sub.Events()
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			logging.Event(r.log, "relay_stopped", logrus.Fields{})
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.Warn(r.log, "relay_subscription_error", err, logrus.Fields{})
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return blackboard.Storage("relay", errors.New("broadcast subscription closed"))
			}
			r.Forward(ctx, ev)
		}
	}
}

// Forward sends one event to every sink and returns the combined failures.
func (r *Relay) Forward(ctx context.Context, ev *blackboard.BroadcastEvent) error {
	var failures []error
	for _, sink := range r.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		err := sink.Send(sendCtx, ev)
		cancel()

		fields := logrus.Fields{"sink": sink.Name(), "correlation_id": ev.CorrelationID}
		if err != nil {
			logging.Warn(r.log, "relay_send_failed", err, fields)
			failures = append(failures, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		logging.Event(r.log, "relay_forwarded", fields)
	}
	return errors.Join(failures...)
}

// Close releases every sink.
func (r *Relay) Close() error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatBroadcast renders an event as a single chat line.
func FormatBroadcast(ev *blackboard.BroadcastEvent) string {
	prefix := ""
	switch ev.Urgency {
	case blackboard.UrgencyEmergency:
		prefix = "[EMERGENCY] "
	case blackboard.UrgencyUrgent:
		prefix = "[URGENT] "
	}
	return fmt.Sprintf("%s%s: %s", prefix, ev.Sender, ev.Content)
}
