// Package mqtt provides MQTT client connectivity for TrackerLink Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	{prefix}/{component_name}/config   tracker announcements (retained JSON)
//	{prefix}/{component_name}/error    rejection reports from Core
//	trackerlink/core/event/{event}     discovery and pairing events
//	trackerlink/system/status          Core online/offline (retained, LWT)
//
// The default prefix is "trackerlink/discovery".
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.DiscoveryTopics{Prefix: cfg.Pairing.DiscoveryTopicPrefix}
//	err = client.Subscribe(topics.AllConfigs(), 1, listener.Handle)
package mqtt
