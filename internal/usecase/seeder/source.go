package seeder

import (
	"context"

	"github.com/kinocat/catalog-seeder/internal/infra/mongostore"
)

// mongoSource adapts the concrete document store to the Source interface.
type mongoSource struct {
	store *mongostore.Store
}

func NewMongoSource(store *mongostore.Store) Source {
	return &mongoSource{store: store}
}

func (m *mongoSource) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	return m.store.EstimatedCount(ctx, collection)
}

func (m *mongoSource) Stream(ctx context.Context, collection string, batchSize int32) (Cursor, error) {
	return m.store.Stream(ctx, collection, batchSize)
}
