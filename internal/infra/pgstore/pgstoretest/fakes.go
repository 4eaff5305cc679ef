// Package pgstoretest provides in-memory fakes for the pgstore transaction
// interfaces so resolver and loader behavior can be tested without a
// database.
package pgstoretest

import (
	"context"
	"errors"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
)

// Call records one statement issued against the fake.
type Call struct {
	SQL  string
	Args []any
}

// Row is a scripted pgx.Row. Values are assigned positionally into the
// Scan destinations.
type Row struct {
	Values []any
	Err    error
}

func (r *Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	for i, d := range dest {
		if i >= len(r.Values) {
			break
		}
		if err := assign(d, r.Values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Rows is a scripted pgx.Rows over a fixed result set.
type Rows struct {
	Data [][]any
	idx  int
	err  error
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	return r.idx < len(r.Data)
}

func (r *Rows) Scan(dest ...any) error {
	row := r.Data[r.idx]
	r.idx++
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		if err := assign(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	row := r.Data[r.idx]
	r.idx++
	return row, nil
}

// BatchResults replays scripted per-statement errors for a sent batch.
type BatchResults struct {
	ExecErrs []error
	idx      int
	closed   bool
}

func (b *BatchResults) Exec() (pgconn.CommandTag, error) {
	var err error
	if b.idx < len(b.ExecErrs) {
		err = b.ExecErrs[b.idx]
	}
	b.idx++
	return pgconn.CommandTag{}, err
}

func (b *BatchResults) Query() (pgx.Rows, error) {
	return nil, errors.New("pgstoretest: batch Query not scripted")
}

func (b *BatchResults) QueryRow() pgx.Row {
	return &Row{Err: errors.New("pgstoretest: batch QueryRow not scripted")}
}

func (b *BatchResults) Close() error {
	b.closed = true
	return nil
}

func (b *BatchResults) Closed() bool { return b.closed }

// DB is a scripted pgstore.DBTX. Statements are appended to Calls in order;
// QueryRow responses are consumed FIFO from RowQueue.
type DB struct {
	Calls    []Call
	RowQueue []*Row
	RowsNext *Rows

	// ExecHook, when set, decides the error for each Exec call.
	ExecHook func(sql string, args []any) error

	// Batches captures every batch sent; BatchQueue supplies the results.
	Batches    []*pgx.Batch
	BatchQueue []*BatchResults
}

func (d *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
	if d.ExecHook != nil {
		return pgconn.CommandTag{}, d.ExecHook(sql, args)
	}
	return pgconn.CommandTag{}, nil
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
	if d.RowsNext != nil {
		rows := d.RowsNext
		d.RowsNext = nil
		return rows, nil
	}
	return &Rows{}, nil
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
	if len(d.RowQueue) == 0 {
		return &Row{Err: pgx.ErrNoRows}
	}
	row := d.RowQueue[0]
	d.RowQueue = d.RowQueue[1:]
	return row
}

func (d *DB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	d.Batches = append(d.Batches, b)
	if len(d.BatchQueue) == 0 {
		return &BatchResults{}
	}
	res := d.BatchQueue[0]
	d.BatchQueue = d.BatchQueue[1:]
	return res
}

// EnqueueRow scripts the next QueryRow response.
func (d *DB) EnqueueRow(values ...any) {
	d.RowQueue = append(d.RowQueue, &Row{Values: values})
}

// EnqueueRowErr scripts the next QueryRow response as an error.
func (d *DB) EnqueueRowErr(err error) {
	d.RowQueue = append(d.RowQueue, &Row{Err: err})
}

// RecordTx is a fake rollback boundary sharing its parent's call log.
type RecordTx struct {
	*DB
	CommitErr  error
	Committed  bool
	RolledBack bool
}

func (t *RecordTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *RecordTx) Rollback(ctx context.Context) error {
	t.RolledBack = true
	return nil
}

// BatchTx is a fake batch transaction. Every record boundary it hands out
// shares the same underlying DB so tests see one ordered statement log.
type BatchTx struct {
	*DB
	BeginRecordErr   error
	RecordCommitErrs []error
	CommitErr        error
	Records          []*RecordTx
	Committed        bool
	RolledBack       bool
}

func NewBatchTx() *BatchTx {
	return &BatchTx{DB: &DB{}}
}

func (t *BatchTx) BeginRecord(ctx context.Context) (pgstore.RecordTx, error) {
	if t.BeginRecordErr != nil {
		return nil, t.BeginRecordErr
	}
	rec := &RecordTx{DB: t.DB}
	if n := len(t.Records); n < len(t.RecordCommitErrs) {
		rec.CommitErr = t.RecordCommitErrs[n]
	}
	t.Records = append(t.Records, rec)
	return rec, nil
}

func (t *BatchTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *BatchTx) Rollback(ctx context.Context) error {
	t.RolledBack = true
	return nil
}

func assign(dest, src any) error {
	if src == nil {
		return nil
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errors.New("pgstoretest: scan destination must be a non-nil pointer")
	}
	sv := reflect.ValueOf(src)
	elem := dv.Elem()
	if sv.Type().AssignableTo(elem.Type()) {
		elem.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(sv.Convert(elem.Type()))
		return nil
	}
	return errors.New("pgstoretest: cannot scan " + sv.Type().String() + " into " + elem.Type().String())
}
