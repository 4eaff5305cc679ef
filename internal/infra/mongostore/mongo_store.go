package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const (
	ERR_MISSING_MONGO_URI = "mongostore: connection URI is required"
	ERR_MISSING_DB_NAME   = "mongostore: database name is required"
	ERR_MONGO_UNREACHABLE = "mongostore: server unreachable after retries"
	ERR_MONGO_DISCONNECT  = "mongostore: error disconnecting client"
)

var (
	ErrMissingURI    = errors.New(ERR_MISSING_MONGO_URI)
	ErrMissingDBName = errors.New(ERR_MISSING_DB_NAME)
	ErrUnreachable   = errors.New(ERR_MONGO_UNREACHABLE)
	ErrDisconnect    = errors.New(ERR_MONGO_DISCONNECT)
)

const (
	connectAttempts = 12
	connectBackoff  = 5 * time.Second
	defaultPoolSize = 10
)

type Config struct {
	URI    string
	DBName string
}

// Store is the read-only view of the source catalog database.
type Store struct {
	cfg    Config
	client *mongo.Client
	db     *mongo.Database
	l      logger.Logger
}

func NewStore(cfg Config, l logger.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, ErrMissingURI
	}
	if cfg.DBName == "" {
		return nil, ErrMissingDBName
	}
	return &Store{cfg: cfg, l: l}, nil
}

// Connect dials and pings with bounded retries so the seeder tolerates a
// source database that is still starting up.
func (s *Store) Connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetReadPreference(readpref.Primary()).
		SetAppName("catalog-seeder").
		SetMaxPoolSize(defaultPoolSize)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		cl, err := mongo.Connect(ctx, opts)
		if err == nil {
			if err = cl.Ping(ctx, nil); err == nil {
				s.client = cl
				s.db = cl.Database(s.cfg.DBName)
				s.l.Info("mongostore: connected", "attempt", attempt, "db", s.cfg.DBName)
				return nil
			}
			if disconnectErr := cl.Disconnect(ctx); disconnectErr != nil {
				s.l.Error("mongostore: error disconnecting after failed ping", "error", disconnectErr.Error())
			}
		}
		lastErr = err
		s.l.Warn("mongostore: connect attempt failed", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// EstimatedCount returns a fast size estimate for progress reporting,
// falling back to an exact count when the estimate is unavailable.
func (s *Store) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	coll := s.db.Collection(collection)
	n, err := coll.EstimatedDocumentCount(ctx)
	if err == nil {
		return n, nil
	}
	s.l.Warn("mongostore: estimated count failed, counting exactly", "collection", collection, "error", err.Error())
	return coll.CountDocuments(ctx, map[string]any{})
}

// Stream opens a full-collection cursor sized to the seeder's batch.
func (s *Store) Stream(ctx context.Context, collection string, batchSize int32) (*mongo.Cursor, error) {
	coll := s.db.Collection(collection)
	opts := options.Find().SetBatchSize(batchSize)
	cur, err := coll.Find(ctx, map[string]any{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: streaming %s: %w", collection, err)
	}
	return cur, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil && err != mongo.ErrClientDisconnected {
		return ErrDisconnect
	}
	s.client = nil
	return nil
}
