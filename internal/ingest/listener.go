// Package ingest feeds discovery announcements received over MQTT into the
// discovery intake.
//
// Producers publish one retained message per tracker:
//
//	trackerlink/discovery/{component_name}/config   JSON submission
//
// Publishing an empty retained payload to the same topic withdraws the
// tracker. Rejected announcements are answered on
// trackerlink/discovery/{component_name}/error.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

var (
	// ErrMalformedPayload is returned when an announcement is not valid JSON.
	ErrMalformedPayload = errors.New("ingest: malformed announcement payload")

	// ErrTopicMismatch is returned when the payload names a different
	// component than its topic. It is reported as a validation error.
	ErrTopicMismatch = errors.New("ingest: component_name does not match topic")

	// ErrUnexpectedTopic is returned for messages outside the config topics.
	ErrUnexpectedTopic = errors.New("ingest: not a discovery config topic")
)

// Intake accepts validated submissions and withdrawals.
type Intake interface {
	Submit(ctx context.Context, source string, s tracker.Submission) (*tracker.Descriptor, error)
	Withdraw(ctx context.Context, source, componentName string) bool
}

// Subscriber is the part of the MQTT client the listener subscribes with.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Publisher sends rejection notices back to producers.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Rejection is the payload published on a tracker's error topic.
type Rejection struct {
	ComponentName string    `json:"component_name"`
	Error         string    `json:"error"`
	RejectedAt    time.Time `json:"rejected_at"`
}

// Listener turns MQTT discovery messages into intake calls.
type Listener struct {
	topics    mqtt.DiscoveryTopics
	intake    Intake
	publisher Publisher
	qos       byte
	logger    Logger
	now       func() time.Time
}

// NewListener creates a listener for announcements under prefix.
// An empty prefix selects mqtt.DefaultDiscoveryPrefix.
func NewListener(prefix string, intake Intake, qos byte) *Listener {
	return &Listener{
		topics: mqtt.DiscoveryTopics{Prefix: prefix},
		intake: intake,
		qos:    qos,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetPublisher enables rejection notices on the error topic.
func (l *Listener) SetPublisher(p Publisher) {
	l.publisher = p
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Start subscribes to every announcement topic.
func (l *Listener) Start(sub Subscriber) error {
	topic := l.topics.AllConfigs()
	if err := sub.Subscribe(topic, l.qos, l.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	l.logger.Info("discovery listener started", "topic", topic)
	return nil
}

// Stop unsubscribes from the announcement topics.
func (l *Listener) Stop(sub Subscriber) error {
	return sub.Unsubscribe(l.topics.AllConfigs())
}

// Handle processes one message. It is an mqtt.MessageHandler.
//
// A returned error means the announcement was rejected; the registry is
// unchanged and, with a publisher set, the producer has been told why.
func (l *Listener) Handle(topic string, payload []byte) error {
	name, ok := l.topics.ParseConfig(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedTopic, topic)
	}
	ctx := context.Background()

	if len(payload) == 0 {
		if l.intake.Withdraw(ctx, discovery.SourceMQTT, name) {
			l.logger.Info("tracker withdrawn over MQTT", "component_name", name)
		}
		return nil
	}

	var s tracker.Submission
	if err := json.Unmarshal(payload, &s); err != nil {
		return l.reject(name, fmt.Errorf("%w: %w", ErrMalformedPayload, err))
	}
	if s.ComponentName == "" {
		s.ComponentName = name
	}
	if s.ComponentName != name {
		return l.reject(name, fmt.Errorf("%w: %w: %q on topic for %q",
			tracker.ErrValidation, ErrTopicMismatch, s.ComponentName, name))
	}

	d, err := l.intake.Submit(ctx, discovery.SourceMQTT, s)
	if err != nil {
		return l.reject(name, err)
	}
	l.logger.Debug("tracker announced over MQTT", "component_name", d.ComponentName, "entities", len(d.Entities))
	return nil
}

func (l *Listener) reject(name string, cause error) error {
	if l.publisher == nil {
		return cause
	}
	body, err := json.Marshal(Rejection{
		ComponentName: name,
		Error:         cause.Error(),
		RejectedAt:    l.now().UTC(),
	})
	if err != nil {
		return cause
	}
	if err := l.publisher.Publish(l.topics.Error(name), body, l.qos, false); err != nil {
		l.logger.Warn("publishing rejection failed", "component_name", name, "error", err)
	}
	return cause
}
