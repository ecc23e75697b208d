package entry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/database"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
	_ "github.com/nerrad567/trackerlink-core/migrations"
)

const testDomain = "import_statistics"

// setupTestDB opens a migrated in-memory database.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// stores returns every Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"sqlite": NewSQLiteRepository(setupTestDB(t).DB),
		"memory": NewMemoryStore(),
	}
}

func band5() *tracker.Descriptor {
	return &tracker.Descriptor{
		ComponentName: "band5",
		Vendor:        "Gadgetbridge",
		DeviceInfo:    &tracker.DeviceInfo{Model: "Band 5", Manufacturer: "Xiaomi"},
		Entities: []tracker.Entity{
			{Name: "daily_steps", StateClass: "total_increasing"},
			{Name: "resting_hr", FriendlyName: "Resting heart rate", UnitOfMeasurement: "bpm"},
		},
		DiscoveredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := store.Create(ctx, NewDiscoveryRequest(testDomain, band5()))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if created.ID == "" || created.UniqueID != "import_statistics_band5" {
				t.Errorf("created = %+v", created)
			}
			if created.Title != "Gadgetbridge - band5" {
				t.Errorf("Title = %q", created.Title)
			}

			got, err := store.GetByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got.Source != SourceDiscovery || got.Payload == nil {
				t.Fatalf("got = %+v", got)
			}
			if got.Payload.Vendor != "Gadgetbridge" || len(got.Payload.Entities) != 2 ||
				got.Payload.Entities[1].UnitOfMeasurement != "bpm" {
				t.Errorf("payload = %+v", got.Payload)
			}
			if !got.Payload.DiscoveredAt.Equal(band5().DiscoveredAt) {
				t.Errorf("DiscoveredAt = %v", got.Payload.DiscoveredAt)
			}

			byUID, err := store.GetByUniqueID(ctx, "import_statistics_band5")
			if err != nil || byUID.ID != created.ID {
				t.Errorf("GetByUniqueID() = %+v, %v", byUID, err)
			}

			exists, err := store.ExistsByUniqueID(ctx, "import_statistics_band5")
			if err != nil || !exists {
				t.Errorf("ExistsByUniqueID() = %v, %v", exists, err)
			}
		})
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Create(ctx, NewDiscoveryRequest(testDomain, band5())); err != nil {
				t.Fatalf("first Create() error = %v", err)
			}
			_, err := store.Create(ctx, NewDiscoveryRequest(testDomain, band5()))
			if !errors.Is(err, ErrEntryExists) {
				t.Errorf("second Create() error = %v, want ErrEntryExists", err)
			}

			list, _ := store.List(ctx)
			if len(list) != 1 {
				t.Errorf("List() has %d entries, want 1", len(list))
			}
		})
	}
}

func TestStore_UserEntry(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			e, err := store.Create(ctx, NewUserRequest(testDomain))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if e.UniqueID != testDomain || e.Title != UserEntryTitle || e.Payload != nil {
				t.Errorf("user entry = %+v", e)
			}
			if e.Device() != nil {
				t.Error("user entry has a device record")
			}

			got, err := store.GetByID(ctx, e.ID)
			if err != nil || got.Source != SourceUser || got.Payload != nil {
				t.Errorf("GetByID() = %+v, %v", got, err)
			}

			if _, err := store.Create(ctx, NewUserRequest(testDomain)); !errors.Is(err, ErrEntryExists) {
				t.Errorf("second user entry error = %v, want ErrEntryExists", err)
			}
		})
	}
}

func TestStore_CreateInvalid(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing unique id", CreateRequest{Domain: testDomain, Title: "t", Source: SourceUser}},
		{"missing domain", CreateRequest{UniqueID: "u", Title: "t", Source: SourceUser}},
		{"missing title", CreateRequest{UniqueID: "u", Domain: testDomain, Source: SourceUser}},
		{"unknown source", CreateRequest{UniqueID: "u", Domain: testDomain, Title: "t", Source: "import"}},
		{"discovery without payload", CreateRequest{UniqueID: "u", Domain: testDomain, Title: "t", Source: SourceDiscovery}},
	}
	for name, store := range stores(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				if _, err := store.Create(ctx, tt.req); !errors.Is(err, ErrInvalidEntry) {
					t.Errorf("Create() error = %v, want ErrInvalidEntry", err)
				}
			})
		}
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.GetByID(ctx, "ent-missing"); !errors.Is(err, ErrEntryNotFound) {
				t.Errorf("GetByID() error = %v", err)
			}
			if _, err := store.GetByUniqueID(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
				t.Errorf("GetByUniqueID() error = %v", err)
			}
			if err := store.Delete(ctx, "ent-missing"); !errors.Is(err, ErrEntryNotFound) {
				t.Errorf("Delete() error = %v", err)
			}
			exists, err := store.ExistsByUniqueID(ctx, "missing")
			if err != nil || exists {
				t.Errorf("ExistsByUniqueID() = %v, %v", exists, err)
			}
		})
	}
}

func TestStore_DeleteFreesUniqueID(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			e, _ := store.Create(ctx, NewDiscoveryRequest(testDomain, band5()))
			if err := store.Delete(ctx, e.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if exists, _ := store.ExistsByUniqueID(ctx, e.UniqueID); exists {
				t.Error("unique id still taken after Delete()")
			}
			if _, err := store.Create(ctx, NewDiscoveryRequest(testDomain, band5())); err != nil {
				t.Errorf("re-Create() error = %v", err)
			}
		})
	}
}

func TestStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sqlite := NewSQLiteRepository(setupTestDB(t).DB)
	memory := NewMemoryStore()
	for name, store := range map[string]Store{"sqlite": sqlite, "memory": memory} {
		t.Run(name, func(t *testing.T) {
			tick := 0
			clock := func() time.Time {
				tick++
				return base.Add(time.Duration(tick) * time.Minute)
			}
			switch s := store.(type) {
			case *SQLiteRepository:
				s.now = clock
			case *MemoryStore:
				s.now = clock
			}

			for _, name := range []string{"zepp", "band5", "garmin"} {
				d := band5()
				d.ComponentName = name
				if _, err := store.Create(ctx, NewDiscoveryRequest(testDomain, d)); err != nil {
					t.Fatalf("Create(%s) error = %v", name, err)
				}
			}

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var got []string
			for _, e := range list {
				got = append(got, e.Payload.ComponentName)
			}
			if len(got) != 3 || got[0] != "zepp" || got[1] != "band5" || got[2] != "garmin" {
				t.Errorf("List() order = %v, want creation order", got)
			}
		})
	}
}

func TestStore_ConcurrentCreateOneWinner(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const racers = 8
			var wg sync.WaitGroup
			errs := make(chan error, racers)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Create(ctx, NewDiscoveryRequest(testDomain, band5()))
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			ok, conflicts := 0, 0
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrEntryExists):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			if ok != 1 || conflicts != racers-1 {
				t.Errorf("ok = %d, conflicts = %d", ok, conflicts)
			}
		})
	}
}

func TestEntry_Device(t *testing.T) {
	e := &Entry{Domain: testDomain, Payload: band5()}
	dev := e.Device()
	if dev == nil {
		t.Fatal("Device() = nil")
	}
	if dev.Name != "Gadgetbridge" || dev.Manufacturer != "Xiaomi" || dev.Model != "Band 5" {
		t.Errorf("Device() = %+v", dev)
	}
	if len(dev.Identifiers) != 1 || dev.Identifiers[0] != [2]string{testDomain, "band5"} {
		t.Errorf("Identifiers = %v", dev.Identifiers)
	}
}

func TestEntry_Sensors(t *testing.T) {
	e := &Entry{Domain: testDomain, Payload: band5()}
	sensors := e.Sensors()
	if len(sensors) != 2 {
		t.Fatalf("Sensors() = %d, want 2", len(sensors))
	}
	if sensors[0].UniqueID != "band5_daily_steps" || sensors[0].EntityID != "sensor.band5_daily_steps" {
		t.Errorf("sensors[0] = %+v", sensors[0])
	}
	if sensors[1].Name != "Resting heart rate" || sensors[1].UnitOfMeasurement != "bpm" {
		t.Errorf("sensors[1] = %+v", sensors[1])
	}

	user := &Entry{Domain: testDomain}
	if user.Sensors() != nil {
		t.Error("user entry should expose no sensors")
	}
}
