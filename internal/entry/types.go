package entry

import (
	"time"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Source records how an entry came to exist.
type Source string

const (
	// SourceDiscovery entries are created by confirming a pairing flow.
	SourceDiscovery Source = "discovery"

	// SourceUser is the single integration entry an operator creates by hand.
	SourceUser Source = "user"
)

// UserEntryTitle is the title of the manually created integration entry.
const UserEntryTitle = "Import Statistics"

// Entry is a durable configuration entry.
type Entry struct {
	ID        string              `json:"id"`
	UniqueID  string              `json:"unique_id"`
	Domain    string              `json:"domain"`
	Title     string              `json:"title"`
	Source    Source              `json:"source"`
	Payload   *tracker.Descriptor `json:"payload,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Device returns the device-registry record for a discovery entry, or nil
// for a user entry.
func (e *Entry) Device() *tracker.RegistryDevice {
	if e.Payload == nil {
		return nil
	}
	dev := e.Payload.RegistryDevice(e.Domain)
	return &dev
}

// Sensors returns the sensors a discovery entry exposes, or nil for a user
// entry.
func (e *Entry) Sensors() []tracker.Sensor {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.Sensors()
}

// CreateRequest asks the store to persist a new entry.
type CreateRequest struct {
	UniqueID string
	Domain   string
	Title    string
	Source   Source
	Payload  *tracker.Descriptor
}

// NewDiscoveryRequest builds the creation request for a confirmed tracker:
// unique id "{domain}_{component}", title "{vendor} - {component}", and the
// full descriptor as payload.
func NewDiscoveryRequest(domain string, d *tracker.Descriptor) CreateRequest {
	return CreateRequest{
		UniqueID: d.UniqueID(domain),
		Domain:   domain,
		Title:    d.EntryTitle(),
		Source:   SourceDiscovery,
		Payload:  d.Clone(),
	}
}

// NewUserRequest builds the creation request for the manual integration
// entry. Its unique id is the bare domain, so only one can exist.
func NewUserRequest(domain string) CreateRequest {
	return CreateRequest{
		UniqueID: domain,
		Domain:   domain,
		Title:    UserEntryTitle,
		Source:   SourceUser,
	}
}

func (r CreateRequest) validate() error {
	switch {
	case r.UniqueID == "":
		return ErrInvalidEntry
	case r.Domain == "":
		return ErrInvalidEntry
	case r.Title == "":
		return ErrInvalidEntry
	case r.Source != SourceDiscovery && r.Source != SourceUser:
		return ErrInvalidEntry
	case r.Source == SourceDiscovery && r.Payload == nil:
		return ErrInvalidEntry
	}
	return nil
}
