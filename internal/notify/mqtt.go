package notify

import (
	"encoding/json"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/mqtt"
)

// Publisher is the part of the MQTT client used to publish events.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
}

// MQTTNotifier publishes signals as Core events:
//
//	trackerlink/core/event/tracker_discovered
//	trackerlink/core/event/tracker_removed
type MQTTNotifier struct {
	pub    Publisher
	logger Logger
}

// NewMQTTNotifier creates a notifier publishing through pub.
func NewMQTTNotifier(pub Publisher, logger Logger) *MQTTNotifier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTNotifier{pub: pub, logger: logger}
}

// TrackerDiscovered implements Notifier.
func (n *MQTTNotifier) TrackerDiscovered(s Signal) {
	n.publish(mqtt.EventTrackerDiscovered, s.ComponentName, s)
}

// TrackerRemoved implements Notifier.
func (n *MQTTNotifier) TrackerRemoved(r Removal) {
	n.publish(mqtt.EventTrackerRemoved, r.ComponentName, r)
}

func (n *MQTTNotifier) publish(event, componentName string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		n.logger.Warn("encoding discovery event", "event", event, "component_name", componentName, "error", err)
		return
	}
	if err := n.pub.PublishEvent(mqtt.Topics{}.CoreEvent(event), payload); err != nil {
		n.logger.Warn("publishing discovery event", "event", event, "component_name", componentName, "error", err)
	}
}
