package notify

// WebSocket channels carrying discovery signals.
const (
	ChannelTrackerDiscovered = "tracker.discovered"
	ChannelTrackerRemoved    = "tracker.removed"
)

// Broadcaster is the part of the WebSocket hub used to push events.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubNotifier pushes signals to subscribed operator UIs.
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a notifier broadcasting through hub.
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// TrackerDiscovered implements Notifier.
func (n *HubNotifier) TrackerDiscovered(s Signal) {
	n.hub.Broadcast(ChannelTrackerDiscovered, s)
}

// TrackerRemoved implements Notifier.
func (n *HubNotifier) TrackerRemoved(r Removal) {
	n.hub.Broadcast(ChannelTrackerRemoved, r)
}
