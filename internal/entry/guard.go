package entry

import (
	"context"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// UniqueIDChecker is the one store query the guard needs.
type UniqueIDChecker interface {
	ExistsByUniqueID(ctx context.Context, uniqueID string) (bool, error)
}

// Guard prevents a tracker from being configured twice.
type Guard struct {
	store UniqueIDChecker
}

// NewGuard creates a guard backed by store.
func NewGuard(store UniqueIDChecker) *Guard {
	return &Guard{store: store}
}

// IsAlreadyConfigured reports whether an entry with unique id
// "{domain}_{componentName}" exists. The store is queried on every call.
func (g *Guard) IsAlreadyConfigured(ctx context.Context, domain, componentName string) (bool, error) {
	return g.store.ExistsByUniqueID(ctx, tracker.UniqueID(domain, componentName))
}
