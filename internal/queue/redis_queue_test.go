package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/models"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, config.Config{
		QueueKey:         "pdf:queue",
		JobKeyPrefix:     "pdf:job:",
		JobRetentionTTL:  time.Hour,
		QueuePollTimeout: time.Second,
	}, nil)
	return q, mr
}

func TestEnqueue_WritesRecordAndPointer(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "<h1>Hi</h1>"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, models.StatusQueued, mr.HGet("pdf:job:"+id, "status"))
	assert.Equal(t, time.Hour, mr.TTL("pdf:job:"+id))

	items, err := mr.List("pdf:queue")
	require.NoError(t, err)
	require.Len(t, items, 1)
	var entry models.QueueEntry
	require.NoError(t, json.Unmarshal([]byte(items[0]), &entry))
	assert.Equal(t, models.QueueEntry{ID: id, Mode: models.ModeRaw}, entry)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, models.ModeRaw, job.Mode)
	assert.JSONEq(t, `{"html":"<h1>Hi</h1>"}`, string(job.Payload))
	assert.False(t, job.CreatedAt.IsZero())
}

func TestDequeue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)

	for _, want := range ids {
		entry, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, want, entry.ID)
	}
}

func TestRequeue_ReturnsToHead(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "a"})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "b"})
	require.NoError(t, err)

	entry, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, first, entry.ID)
	require.NoError(t, q.Requeue(ctx, first))

	for _, want := range []string{first, second} {
		entry, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, want, entry.ID)
	}
}

func TestDequeue_TimeoutReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)

	entry, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDequeue_BareID(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.RPush("pdf:queue", "legacy-id")
	require.NoError(t, err)

	entry, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "legacy-id", entry.ID)
	assert.Empty(t, entry.Mode)
}

func TestTransitions_Done(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
	require.NoError(t, err)

	require.NoError(t, q.MarkProcessing(ctx, id))
	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, job.Status)

	mr.FastForward(30 * time.Minute)
	require.NoError(t, q.MarkDone(ctx, id, models.GeneratePdfResult{
		URL: "/static/PDF/20240101/a.pdf", FileName: "a.pdf", Size: 1234,
	}))
	// Terminal transitions restart the retention window.
	assert.Equal(t, time.Hour, mr.TTL("pdf:job:"+id))

	job, err = q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, job.Status)
	assert.Equal(t, "/static/PDF/20240101/a.pdf", job.URL)
	assert.Equal(t, "a.pdf", job.FileName)
	assert.Equal(t, int64(1234), job.Size)
	assert.Empty(t, job.Error)
}

func TestTransitions_TerminalIsImmutable(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
	require.NoError(t, err)

	require.NoError(t, q.MarkProcessing(ctx, id))
	require.NoError(t, q.MarkError(ctx, id, "template exploded"))

	err = q.MarkDone(ctx, id, models.GeneratePdfResult{URL: "/x.pdf"})
	assert.True(t, errors.Is(err, ErrStaleTransition))
	err = q.MarkProcessing(ctx, id)
	assert.True(t, errors.Is(err, ErrStaleTransition))

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, job.Status)
	assert.Equal(t, "template exploded", job.Error)
	assert.Empty(t, job.URL)
}

func TestTransitions_SkipProcessingIsRejected(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
	require.NoError(t, err)

	err = q.MarkDone(ctx, id, models.GeneratePdfResult{})
	assert.True(t, errors.Is(err, ErrStaleTransition))
}

func TestTransitions_MissingJob(t *testing.T) {
	q, _ := newTestQueue(t)

	err := q.MarkProcessing(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGet_MissingAndExpired(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, job)

	id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	job, err = q.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueue_ConcurrentDistinctIDs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	const n = 50
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := q.Enqueue(ctx, models.ModeRaw, models.RawRequest{HTML: "x"})
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), depth)
}

func TestEnqueue_RedisDown(t *testing.T) {
	q, mr := newTestQueue(t)
	mr.Close()

	_, err := q.Enqueue(context.Background(), models.ModeRaw, models.RawRequest{HTML: "x"})
	assert.True(t, apperr.Is(err, apperr.KindInfrastructure))
}
