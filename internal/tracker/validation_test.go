package tracker

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func validSubmission() Submission {
	return Submission{
		ComponentName: "band5",
		Vendor:        "Gadgetbridge",
		DeviceInfo:    &DeviceInfo{Model: "Band 5", Manufacturer: "Xiaomi"},
		Entities: []Entity{
			{Name: "daily_steps", FriendlyName: "Daily steps", StateClass: "total_increasing"},
			{Name: "resting_hr", UnitOfMeasurement: "bpm"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := Validator{Now: func() time.Time { return fixed }}

	d, err := v.Validate(validSubmission())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.ComponentName != "band5" || d.Vendor != "Gadgetbridge" {
		t.Errorf("descriptor = %+v", d)
	}
	if len(d.Entities) != 2 || d.Entities[0].Name != "daily_steps" {
		t.Errorf("entities = %+v, want submission order preserved", d.Entities)
	}
	if !d.DiscoveredAt.Equal(fixed) {
		t.Errorf("DiscoveredAt = %v, want %v", d.DiscoveredAt, fixed)
	}
}

func TestValidate_DefaultVendor(t *testing.T) {
	s := validSubmission()
	s.Vendor = ""

	d, err := Validate(s)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.Vendor != DefaultVendor {
		t.Errorf("Vendor = %q, want %q", d.Vendor, DefaultVendor)
	}

	d, err = Validator{DefaultVendor: "Wearable"}.Validate(s)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.Vendor != "Wearable" {
		t.Errorf("Vendor = %q, want configured default", d.Vendor)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Submission)
		want   error
	}{
		{
			name:   "missing component name",
			mutate: func(s *Submission) { s.ComponentName = "" },
			want:   ErrMissingKey,
		},
		{
			name:   "missing key checked before entities",
			mutate: func(s *Submission) { s.ComponentName = ""; s.Entities = nil },
			want:   ErrMissingKey,
		},
		{
			name:   "no entities",
			mutate: func(s *Submission) { s.Entities = nil },
			want:   ErrEmptyEntityList,
		},
		{
			name: "duplicate entity names",
			mutate: func(s *Submission) {
				s.Entities = append(s.Entities, Entity{Name: "daily_steps"})
			},
			want: ErrDuplicateEntityName,
		},
		{
			name: "duplicate checked before empty names",
			mutate: func(s *Submission) {
				s.Entities = []Entity{{Name: ""}, {Name: ""}}
			},
			want: ErrDuplicateEntityName,
		},
		{
			name:   "empty entity name",
			mutate: func(s *Submission) { s.Entities[1].Name = "" },
			want:   ErrInvalidEntity,
		},
		{
			name:   "component name with spaces",
			mutate: func(s *Submission) { s.ComponentName = "band 5" },
			want:   ErrInvalidComponentName,
		},
		{
			name:   "component name too long",
			mutate: func(s *Submission) { s.ComponentName = strings.Repeat("a", maxNameLength+1) },
			want:   ErrInvalidComponentName,
		},
		{
			name:   "entity name with dash",
			mutate: func(s *Submission) { s.Entities[0].Name = "daily-steps" },
			want:   ErrInvalidEntity,
		},
		{
			name: "too many entities",
			mutate: func(s *Submission) {
				s.Entities = nil
				for i := 0; i <= maxEntities; i++ {
					s.Entities = append(s.Entities, Entity{Name: "e_" + strconv.Itoa(i)})
				}
			},
			want: ErrInvalidEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(&s)

			d, err := Validate(s)
			if d != nil {
				t.Errorf("Validate() returned descriptor %+v on error", d)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v does not match ErrValidation", err)
			}
		})
	}
}

func TestValidate_DoesNotAliasSubmission(t *testing.T) {
	s := validSubmission()
	d, err := Validate(s)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	s.Entities[0].Name = "mutated"
	s.DeviceInfo.Model = "mutated"

	if d.Entities[0].Name != "daily_steps" || d.DeviceInfo.Model != "Band 5" {
		t.Error("descriptor changed when the submission was mutated")
	}
}

func TestValidate_NameCharset(t *testing.T) {
	for name, ok := range map[string]bool{
		"band5":       true,
		"Daily_Steps": true,
		"a.b":         false,
		"héllo":       false,
		"band 5":      false,
	} {
		s := validSubmission()
		s.ComponentName = name
		_, err := Validate(s)
		if ok && err != nil {
			t.Errorf("Validate(%q) error = %v", name, err)
		}
		if !ok && !errors.Is(err, ErrInvalidComponentName) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidComponentName", name, err)
		}
	}
}
