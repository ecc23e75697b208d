package tracker

import (
	"fmt"
	"time"
)

// Size limits on a single submission.
const (
	maxNameLength = 128
	maxEntities   = 256
)

// Validator converts submissions into descriptors.
// The zero value uses DefaultVendor and the wall clock.
type Validator struct {
	// DefaultVendor replaces an empty vendor. Empty means DefaultVendor.
	DefaultVendor string

	// Now stamps DiscoveredAt. Nil means time.Now.
	Now func() time.Time
}

// Validate checks a submission with the zero Validator.
func Validate(s Submission) (*Descriptor, error) {
	return Validator{}.Validate(s)
}

// Validate checks s and returns the descriptor it describes.
//
// Checks run in this order and the first failure is returned:
//  1. component_name is non-empty (ErrMissingKey)
//  2. entities is non-empty (ErrEmptyEntityList)
//  3. entity names are unique (ErrDuplicateEntityName)
//  4. every entity name is non-empty (ErrInvalidEntity)
//  5. names use only letters, digits and underscores and fit the size
//     limits (ErrInvalidComponentName, ErrInvalidEntity)
//
// Every returned error also matches ErrValidation. The returned descriptor
// shares no memory with s.
func (v Validator) Validate(s Submission) (*Descriptor, error) {
	if s.ComponentName == "" {
		return nil, invalid(ErrMissingKey, "")
	}
	if len(s.Entities) == 0 {
		return nil, invalid(ErrEmptyEntityList, "")
	}

	seen := make(map[string]struct{}, len(s.Entities))
	for _, e := range s.Entities {
		if _, dup := seen[e.Name]; dup {
			return nil, invalid(ErrDuplicateEntityName, fmt.Sprintf("%q", e.Name))
		}
		seen[e.Name] = struct{}{}
	}

	for i, e := range s.Entities {
		if e.Name == "" {
			return nil, invalid(ErrInvalidEntity, fmt.Sprintf("entity %d has no name", i))
		}
	}

	if err := checkName(s.ComponentName); err != "" {
		return nil, invalid(ErrInvalidComponentName, fmt.Sprintf("%q %s", s.ComponentName, err))
	}
	if len(s.Entities) > maxEntities {
		return nil, invalid(ErrInvalidEntity, fmt.Sprintf("%d entities exceeds maximum %d", len(s.Entities), maxEntities))
	}
	for _, e := range s.Entities {
		if err := checkName(e.Name); err != "" {
			return nil, invalid(ErrInvalidEntity, fmt.Sprintf("name %q %s", e.Name, err))
		}
	}

	vendor := s.Vendor
	if vendor == "" {
		vendor = v.DefaultVendor
	}
	if vendor == "" {
		vendor = DefaultVendor
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	d := &Descriptor{
		ComponentName: s.ComponentName,
		Vendor:        vendor,
		DeviceInfo:    s.DeviceInfo,
		Entities:      s.Entities,
		DiscoveredAt:  now().UTC(),
	}
	return d.Clone(), nil
}

// checkName returns a description of what is wrong with name, or "".
func checkName(name string) string {
	if len(name) > maxNameLength {
		return fmt.Sprintf("exceeds %d characters", maxNameLength)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return "may only contain letters, digits and underscores"
		}
	}
	return ""
}

// isNameRune accepts ASCII only. Names end up in sensor entity ids and MQTT
// topic segments.
func isNameRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
