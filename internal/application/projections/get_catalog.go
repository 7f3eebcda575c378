package projections

import (
	"context"

	"go.uber.org/zap"

	"signup/internal/domain/activity"
)

// CatalogFailureMessage replaces the list when the catalog cannot be loaded.
const CatalogFailureMessage = "Failed to load activities. Please try again later."

// CatalogBackend defines the backend call needed by this projection.
type CatalogBackend interface {
	Activities(ctx context.Context) (activity.Catalog, error)
}

// GetCatalogDeps holds dependencies for the projection.
type GetCatalogDeps struct {
	Backend CatalogBackend
	Log     *zap.Logger
}

// QueryGetCatalog fetches the full catalog. Activities that fail domain
// validation are dropped and logged rather than failing the whole list.
// PRE: none
// POST: Returns a fresh catalog owned by the caller
func QueryGetCatalog(ctx context.Context, deps GetCatalogDeps) (activity.Catalog, error) {
	catalog, err := deps.Backend.Activities(ctx)
	if err != nil {
		return nil, err
	}
	for name, a := range catalog {
		if err := a.Validate(); err != nil {
			if deps.Log != nil {
				deps.Log.Warn("catalog_entry_dropped", zap.String("activity", name), zap.Error(err))
			}
			delete(catalog, name)
		}
	}
	return catalog, nil
}
