package tracker

import (
	"strconv"
	"strings"
	"time"
)

// DefaultVendor is used when a submission omits the vendor.
const DefaultVendor = "Fitness Tracker"

// Entity describes one measurable channel of a tracker, such as daily steps
// or resting heart rate. Name is unique within its descriptor.
type Entity struct {
	Name              string `json:"name"`
	FriendlyName      string `json:"friendly_name,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
}

// DisplayName returns the friendly name, or the name when none is set.
func (e Entity) DisplayName() string {
	if e.FriendlyName != "" {
		return e.FriendlyName
	}
	return e.Name
}

// SensorUniqueID returns the unique id of the sensor created for this
// entity once the tracker is configured: "{component}_{name}".
func (e Entity) SensorUniqueID(componentName string) string {
	return componentName + "_" + e.Name
}

// SensorEntityID returns the entity id of that sensor: "sensor.{component}_{name}".
func (e Entity) SensorEntityID(componentName string) string {
	return "sensor." + e.SensorUniqueID(componentName)
}

// Sensor is the measurement a configured tracker exposes for one entity.
type Sensor struct {
	UniqueID          string `json:"unique_id"`
	EntityID          string `json:"entity_id"`
	Name              string `json:"name"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
}

// DeviceInfo is optional descriptive metadata. No field is required.
type DeviceInfo struct {
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SWVersion    string `json:"sw_version,omitempty"`
	HWVersion    string `json:"hw_version,omitempty"`
}

// Submission is a discovery announcement as received from a producer.
// Validate converts it into a Descriptor.
type Submission struct {
	ComponentName string      `json:"component_name"`
	Vendor        string      `json:"vendor,omitempty"`
	DeviceInfo    *DeviceInfo `json:"device_info,omitempty"`
	Entities      []Entity    `json:"entities"`
}

// Descriptor is a validated, discovered-but-unconfirmed tracker.
//
// ComponentName is the registry key. A descriptor is never mutated once
// stored; re-discovery replaces it wholesale.
type Descriptor struct {
	ComponentName string      `json:"component_name"`
	Vendor        string      `json:"vendor"`
	DeviceInfo    *DeviceInfo `json:"device_info,omitempty"`
	Entities      []Entity    `json:"entities"`
	DiscoveredAt  time.Time   `json:"discovered_at"`
}

// Clone returns an independent copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.DeviceInfo != nil {
		info := *d.DeviceInfo
		cpy.DeviceInfo = &info
	}
	if d.Entities != nil {
		cpy.Entities = make([]Entity, len(d.Entities))
		copy(cpy.Entities, d.Entities)
	}
	return &cpy
}

// Model returns the device model, or "" when no device info is present.
func (d *Descriptor) Model() string {
	if d.DeviceInfo == nil {
		return ""
	}
	return d.DeviceInfo.Model
}

// Manufacturer returns the manufacturer, defaulting to the vendor.
func (d *Descriptor) Manufacturer() string {
	if d.DeviceInfo != nil && d.DeviceInfo.Manufacturer != "" {
		return d.DeviceInfo.Manufacturer
	}
	return d.Vendor
}

// DisplayTitle is the title announced in discovery notifications:
// "{vendor} {model}" trimmed, or the vendor alone when no model is known.
func (d *Descriptor) DisplayTitle() string {
	model := d.Model()
	if model == "" {
		return d.Vendor
	}
	return strings.TrimSpace(d.Vendor + " " + model)
}

// DeviceName is the name shown when asking the operator to confirm.
// It extends DisplayTitle with " by {manufacturer}" when the manufacturer
// differs from the vendor.
func (d *Descriptor) DeviceName() string {
	name := d.DisplayTitle()
	if d.DeviceInfo != nil && d.DeviceInfo.Manufacturer != "" && d.DeviceInfo.Manufacturer != d.Vendor {
		name += " by " + d.DeviceInfo.Manufacturer
	}
	return name
}

// SelectionLabel is the label of this tracker in a selection list:
// "{vendor} ({component_name})".
func (d *Descriptor) SelectionLabel() string {
	return d.Vendor + " (" + d.ComponentName + ")"
}

// EntryTitle is the title of the configuration entry created on confirm.
func (d *Descriptor) EntryTitle() string {
	return d.Vendor + " - " + d.ComponentName
}

// UniqueID is the configuration-entry unique identifier within domain.
func (d *Descriptor) UniqueID(domain string) string {
	return UniqueID(domain, d.ComponentName)
}

// UniqueID builds "{domain}_{componentName}".
func UniqueID(domain, componentName string) string {
	return domain + "_" + componentName
}

// ConfirmationText is the description presented before the operator
// confirms a pairing.
//
// Example:
//
//	Add Gadgetbridge Band 5 by Xiaomi?
//
//	Component name: band5
//
//	This will create 2 entities:
//
//	  • Daily steps
//	  • resting_hr
func (d *Descriptor) ConfirmationText() string {
	var b strings.Builder
	b.WriteString("Add " + d.DeviceName() + "?\n\n")
	b.WriteString("Component name: " + d.ComponentName + "\n\n")
	b.WriteString("This will create " + strconv.Itoa(len(d.Entities)) + " entities:\n\n")
	for i, e := range d.Entities {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  • " + e.DisplayName())
	}
	return b.String()
}

// Sensors returns one sensor per entity, in entity order.
func (d *Descriptor) Sensors() []Sensor {
	out := make([]Sensor, 0, len(d.Entities))
	for _, e := range d.Entities {
		out = append(out, Sensor{
			UniqueID:          e.SensorUniqueID(d.ComponentName),
			EntityID:          e.SensorEntityID(d.ComponentName),
			Name:              e.DisplayName(),
			UnitOfMeasurement: e.UnitOfMeasurement,
			DeviceClass:       e.DeviceClass,
			StateClass:        e.StateClass,
			Icon:              e.Icon,
		})
	}
	return out
}

// RegistryDevice is the device-registry record a configured tracker
// contributes to downstream consumers.
type RegistryDevice struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model,omitempty"`
	SWVersion    string      `json:"sw_version,omitempty"`
	HWVersion    string      `json:"hw_version,omitempty"`
}

// RegistryDevice builds the device record for domain. The device is named
// after the vendor and identified by (domain, component_name).
func (d *Descriptor) RegistryDevice(domain string) RegistryDevice {
	dev := RegistryDevice{
		Identifiers:  [][2]string{{domain, d.ComponentName}},
		Name:         d.Vendor,
		Manufacturer: d.Manufacturer(),
	}
	if d.DeviceInfo != nil {
		dev.Model = d.DeviceInfo.Model
		dev.SWVersion = d.DeviceInfo.SWVersion
		dev.HWVersion = d.DeviceInfo.HWVersion
	}
	return dev
}
