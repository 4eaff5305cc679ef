package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const (
	ERR_MISSING_PG_DSN     = "pgstore: connection string is required"
	ERR_PG_UNREACHABLE     = "pgstore: database unreachable after retries"
	ERR_PG_NOT_CONNECTED   = "pgstore: store is not connected"
	ERR_PG_RESET           = "pgstore: catalog reset failed"
	ERR_PG_BATCH_BEGIN     = "pgstore: begin batch transaction"
	ERR_PG_MISSING_LOGGER  = "pgstore: logger is required"
	ERR_PG_MISSING_CONTEXT = "pgstore: context is required"
)

var (
	ErrMissingDSN     = errors.New(ERR_MISSING_PG_DSN)
	ErrUnreachable    = errors.New(ERR_PG_UNREACHABLE)
	ErrNotConnected   = errors.New(ERR_PG_NOT_CONNECTED)
	ErrMissingLogger  = errors.New(ERR_PG_MISSING_LOGGER)
	ErrMissingContext = errors.New(ERR_PG_MISSING_CONTEXT)
)

const (
	connectAttempts = 12
	connectBackoff  = 5 * time.Second
)

// resetStmt truncates the movie-rooted tables ahead of a clean run. Lookup
// tables (people, roles, countries, genres, distributors) are kept; the
// resolvers deduplicate against their existing rows.
const resetStmt = `
	TRUNCATE TABLE
	  movie_people,
	  movie_genres,
	  movie_countries,
	  movie_distributors,
	  movie_facts,
	  movie_videos,
	  episodes,
	  seasons,
	  movies
	RESTART IDENTITY CASCADE`

type Config struct {
	DSN string
}

// Store owns one Postgres connection for the lifetime of a run. The seeder
// is single-writer so a plain connection is preferred over a pool.
type Store struct {
	cfg  Config
	conn *pgx.Conn
	l    logger.Logger
}

func NewStore(cfg Config, l logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	if l == nil {
		return nil, ErrMissingLogger
	}
	return &Store{cfg: cfg, l: l}, nil
}

// Connect dials with bounded retries so the seeder can start before the
// database container finishes initializing.
func (s *Store) Connect(ctx context.Context) error {
	if ctx == nil {
		return ErrMissingContext
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err := pgx.Connect(ctx, s.cfg.DSN)
		if err == nil {
			s.conn = conn
			s.tuneSession(ctx)
			s.l.Info("pgstore: connected", "attempt", attempt)
			return nil
		}
		lastErr = err
		s.l.Warn("pgstore: connect attempt failed", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// tuneSession applies bulk-load settings. Failures are logged and ignored;
// the defaults are merely slower, not incorrect.
func (s *Store) tuneSession(ctx context.Context) {
	settings := []string{
		"SET work_mem = '256MB'",
		"SET maintenance_work_mem = '512MB'",
		"SET synchronous_commit = off",
	}
	for _, stmt := range settings {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			s.l.Warn("pgstore: session setting rejected", "stmt", stmt, "error", err.Error())
		}
	}
}

// BeginBatch opens the transaction that will hold one batch of documents.
func (s *Store) BeginBatch(ctx context.Context) (BatchTx, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ERR_PG_BATCH_BEGIN, err)
	}
	return &batchTx{Tx: tx}, nil
}

// DB exposes the raw connection for statements that run outside a batch.
func (s *Store) DB() DBTX {
	return s.conn
}

// Reset truncates every catalog table and restarts their identity sequences
// so a full clean run starts from id 1.
func (s *Store) Reset(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if _, err := s.conn.Exec(ctx, resetStmt); err != nil {
		return fmt.Errorf("%s: %w", ERR_PG_RESET, err)
	}
	s.l.Info("pgstore: movie tables truncated")
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	return err
}

// Diagnostic renders a database error for logs, surfacing the SQLSTATE,
// constraint and detail when the driver provides them.
func Diagnostic(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := fmt.Sprintf("SQLSTATE %s: %s", pgErr.Code, pgErr.Message)
		if pgErr.ConstraintName != "" {
			msg = fmt.Sprintf("%s (constraint %s)", msg, pgErr.ConstraintName)
		}
		if pgErr.Detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, pgErr.Detail)
		}
		return msg
	}
	return err.Error()
}
