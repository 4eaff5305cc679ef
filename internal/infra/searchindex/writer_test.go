package searchindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

type fakeBulkClient struct {
	bodies  [][]byte
	bulkErr error
	deleted []string
}

func (f *fakeBulkClient) Ping(ctx context.Context) error { return nil }

func (f *fakeBulkClient) Bulk(ctx context.Context, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.bodies = append(f.bodies, b)
	return f.bulkErr
}

func (f *fakeBulkClient) DeleteIndex(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func newTestWriter(t *testing.T, bulkSize int) (*Writer, *fakeBulkClient) {
	t.Helper()
	w, err := NewWriter(Config{Addr: "http://localhost:9200", Index: "movies", BulkSize: bulkSize}, logger.GetNopLogger())
	require.NoError(t, err)
	fake := &fakeBulkClient{}
	w.client = fake
	return w, fake
}

func TestWriterFlushesAtBulkSize(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	ctx := context.Background()

	require.NoError(t, w.Index(ctx, 1, map[string]any{"title": "first"}))
	require.Empty(t, fake.bodies)
	require.Equal(t, 1, w.Queued())

	require.NoError(t, w.Index(ctx, 2, map[string]any{"title": "second"}))
	require.Len(t, fake.bodies, 1)
	require.Equal(t, 0, w.Queued())

	sc := bufio.NewScanner(bytes.NewReader(fake.bodies[0]))
	var lines []map[string]any
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 4)

	action, ok := lines[0]["index"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "movies", action["_index"])
	require.Equal(t, float64(1), action["_id"])
	require.Equal(t, "first", lines[1]["title"])
	require.Equal(t, "second", lines[3]["title"])
}

func TestWriterFlushClearsBufferOnError(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	fake.bulkErr = errors.New("cluster busy")
	ctx := context.Background()

	require.NoError(t, w.Index(ctx, 7, map[string]any{"title": "doomed"}))
	require.Error(t, w.Flush(ctx))
	require.Equal(t, 0, w.Queued())

	// A later flush must not resend the failed payload.
	require.NoError(t, w.Flush(ctx))
	require.Len(t, fake.bodies, 1)
}

func TestWriterFlushWithEmptyBufferIsNoop(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	require.NoError(t, w.Flush(context.Background()))
	require.Empty(t, fake.bodies)
}

func TestWriterDeleteIndex(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	require.NoError(t, w.DeleteIndex(context.Background()))
	require.Equal(t, []string{"movies"}, fake.deleted)
}

func TestWriterRequiresConnection(t *testing.T) {
	w, err := NewWriter(Config{Addr: "http://localhost:9200", Index: "movies"}, logger.GetNopLogger())
	require.NoError(t, err)
	err = w.Index(context.Background(), 1, map[string]any{})
	require.ErrorIs(t, err, ErrNotConnected)
}
