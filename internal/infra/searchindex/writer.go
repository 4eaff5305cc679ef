package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const (
	ERR_MISSING_ES_ADDR  = "searchindex: address is required"
	ERR_ES_UNREACHABLE   = "searchindex: cluster unreachable after retries"
	ERR_ES_BULK_REJECTED = "searchindex: bulk request rejected"
	ERR_ES_BULK_PARTIAL  = "searchindex: bulk request had item failures"
	ERR_ES_DELETE_INDEX  = "searchindex: delete index failed"
	ERR_ES_ENCODE_ACTION = "searchindex: encoding bulk action"
	ERR_ES_ENCODE_SOURCE = "searchindex: encoding document source"
	ERR_ES_NOT_CONNECTED = "searchindex: writer is not connected"
)

var (
	ErrMissingAddr  = errors.New(ERR_MISSING_ES_ADDR)
	ErrUnreachable  = errors.New(ERR_ES_UNREACHABLE)
	ErrBulkRejected = errors.New(ERR_ES_BULK_REJECTED)
	ErrBulkPartial  = errors.New(ERR_ES_BULK_PARTIAL)
	ErrNotConnected = errors.New(ERR_ES_NOT_CONNECTED)
)

const (
	connectAttempts = 12
	connectBackoff  = 5 * time.Second
)

type Config struct {
	Addr     string
	Index    string
	BulkSize int
}

// bulkClient is the slice of the Elasticsearch API the writer uses. The
// production client satisfies it through esClient.
type bulkClient interface {
	Ping(ctx context.Context) error
	Bulk(ctx context.Context, body io.Reader) error
	DeleteIndex(ctx context.Context, name string) error
}

// Writer buffers index actions and ships them in NDJSON bulk requests. All
// failures are reported to the caller, which treats the index as
// best-effort and keeps loading.
type Writer struct {
	cfg    Config
	client bulkClient
	buf    bytes.Buffer
	queued int
	l      logger.Logger
}

func NewWriter(cfg Config, l logger.Logger) (*Writer, error) {
	if cfg.Addr == "" {
		return nil, ErrMissingAddr
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 1000
	}
	return &Writer{cfg: cfg, l: l}, nil
}

// Connect pings the cluster with bounded retries. Callers degrade to a nil
// writer when this fails rather than aborting the run.
func (w *Writer) Connect(ctx context.Context) error {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{w.cfg.Addr}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	client := &esClient{es: es}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err := client.Ping(ctx); err == nil {
			w.client = client
			w.l.Info("searchindex: connected", "attempt", attempt, "index", w.cfg.Index)
			return nil
		} else {
			lastErr = err
			w.l.Warn("searchindex: ping attempt failed", "attempt", attempt, "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// Index queues one document and flushes when the buffer reaches the
// configured bulk size.
func (w *Writer) Index(ctx context.Context, id int64, doc map[string]any) error {
	if w.client == nil {
		return ErrNotConnected
	}

	action := map[string]any{
		"index": map[string]any{"_index": w.cfg.Index, "_id": id},
	}
	enc := json.NewEncoder(&w.buf)
	if err := enc.Encode(action); err != nil {
		return fmt.Errorf("%s: %w", ERR_ES_ENCODE_ACTION, err)
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%s: %w", ERR_ES_ENCODE_SOURCE, err)
	}
	w.queued++

	if w.queued >= w.cfg.BulkSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush ships the buffered actions. The buffer is cleared whether or not
// the request succeeds so one bad payload cannot wedge the writer.
func (w *Writer) Flush(ctx context.Context) error {
	if w.queued == 0 {
		return nil
	}

	body := make([]byte, w.buf.Len())
	copy(body, w.buf.Bytes())
	n := w.queued
	w.buf.Reset()
	w.queued = 0

	if err := w.client.Bulk(ctx, bytes.NewReader(body)); err != nil {
		w.l.Warn("searchindex: bulk flush failed", "docs", n, "error", err.Error())
		return err
	}
	w.l.Debug("searchindex: bulk flushed", "docs", n)
	return nil
}

// DeleteIndex drops the index ahead of a full clean run. A missing index is
// not an error.
func (w *Writer) DeleteIndex(ctx context.Context) error {
	if w.client == nil {
		return ErrNotConnected
	}
	if err := w.client.DeleteIndex(ctx, w.cfg.Index); err != nil {
		return fmt.Errorf("%s: %w", ERR_ES_DELETE_INDEX, err)
	}
	return nil
}

func (w *Writer) Queued() int { return w.queued }

// esClient adapts the official client to bulkClient.
type esClient struct {
	es *elasticsearch.Client
}

func (c *esClient) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

func (c *esClient) Bulk(ctx context.Context, body io.Reader) error {
	res, err := c.es.Bulk(body, c.es.Bulk.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrBulkRejected, res.Status())
	}

	var report struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		return fmt.Errorf("searchindex: decoding bulk response: %w", err)
	}
	if report.Errors {
		return ErrBulkPartial
	}
	return nil
}

func (c *esClient) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete(
		[]string{name},
		c.es.Indices.Delete.WithContext(ctx),
		c.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete index %s: %s", name, res.Status())
	}
	return nil
}
