package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for topics owned by TrackerLink Core.
const (
	// TopicPrefixCore is the base for events published by Core.
	TopicPrefixCore = "trackerlink/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "trackerlink/system"

	// DefaultDiscoveryPrefix is where tracker producers announce themselves
	// unless pairing.discovery_topic_prefix says otherwise.
	DefaultDiscoveryPrefix = "trackerlink/discovery"
)

// Core event names published under TopicPrefixCore/event.
const (
	EventTrackerDiscovered = "tracker_discovered"
	EventTrackerRemoved    = "tracker_removed"
	EventFlowFinished      = "flow_finished"
)

// Topics provides builders for Core-owned MQTT topics.
//
//	topic := mqtt.Topics{}.CoreEvent(mqtt.EventTrackerDiscovered)
//	// Returns: "trackerlink/core/event/tracker_discovered"
type Topics struct{}

// CoreEvent returns the topic for a Core event.
//
// Example: trackerlink/core/event/tracker_discovered
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the topic carrying Core's online/offline status.
// Messages are retained and the broker publishes the LWT here.
//
// Example: trackerlink/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DiscoveryTopics builds topics under a configurable discovery prefix.
//
// Producers publish a descriptor as JSON on "{prefix}/{component_name}/config".
// An empty retained payload on the same topic withdraws the tracker.
type DiscoveryTopics struct {
	Prefix string
}

func (d DiscoveryTopics) prefix() string {
	if d.Prefix == "" {
		return DefaultDiscoveryPrefix
	}
	return strings.TrimSuffix(d.Prefix, "/")
}

// Config returns the topic a producer announces componentName on.
//
// Example: trackerlink/discovery/garmin_daily/config
func (d DiscoveryTopics) Config(componentName string) string {
	return fmt.Sprintf("%s/%s/config", d.prefix(), componentName)
}

// AllConfigs returns the wildcard subscription matching every announcement.
//
// Example: trackerlink/discovery/+/config
func (d DiscoveryTopics) AllConfigs() string {
	return d.prefix() + "/+/config"
}

// Error returns the topic Core reports rejected announcements on.
//
// Example: trackerlink/discovery/garmin_daily/error
func (d DiscoveryTopics) Error(componentName string) string {
	return fmt.Sprintf("%s/%s/error", d.prefix(), componentName)
}

// ParseConfig extracts the component name from a config topic.
// ok is false if topic is not "{prefix}/{name}/config".
func (d DiscoveryTopics) ParseConfig(topic string) (componentName string, ok bool) {
	rest, found := strings.CutPrefix(topic, d.prefix()+"/")
	if !found {
		return "", false
	}
	name, found := strings.CutSuffix(rest, "/config")
	if !found || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
