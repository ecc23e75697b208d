//go:build integration

package mqtt

import (
	"testing"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_AnnouncementRoundtrip(t *testing.T) {
	client, err := Connect(integrationConfig("trackerlink-int-roundtrip"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := DiscoveryTopics{Prefix: "trackerlink-test/discovery"}
	received := make(chan string, 1)

	err = client.Subscribe(topics.AllConfigs(), 1, func(topic string, _ []byte) error {
		if name, ok := topics.ParseConfig(topic); ok {
			received <- name
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topics.AllConfigs()) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topics.Config("garmin_daily"), []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case name := <-received:
		if name != "garmin_daily" {
			t.Errorf("received %q, want garmin_daily", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("announcement not received")
	}

	if err := client.Unsubscribe(topics.AllConfigs()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
