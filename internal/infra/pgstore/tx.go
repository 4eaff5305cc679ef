package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the statement-level capability resolvers and loaders need. It is
// satisfied by *pgx.Conn, pgx.Tx and by test fakes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// RecordTx is the rollback boundary around one document's writes. Commit
// releases the boundary keeping the writes in the enclosing batch; Rollback
// discards only this document's writes.
type RecordTx interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BatchTx is one batch's transaction. BeginRecord opens a rollback boundary
// for a single document; Commit makes the whole batch durable.
type BatchTx interface {
	DBTX
	BeginRecord(ctx context.Context) (RecordTx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// batchTx adapts a pgx transaction. Nested Begin maps onto SAVEPOINT /
// RELEASE / ROLLBACK TO, with boundary names managed per connection, so
// concurrent writers on separate connections can never collide on names.
type batchTx struct {
	pgx.Tx
}

func (t *batchTx) BeginRecord(ctx context.Context) (RecordTx, error) {
	inner, err := t.Tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &recordTx{Tx: inner}, nil
}

type recordTx struct {
	pgx.Tx
}

func (t *recordTx) Commit(ctx context.Context) error   { return t.Tx.Commit(ctx) }
func (t *recordTx) Rollback(ctx context.Context) error { return t.Tx.Rollback(ctx) }
