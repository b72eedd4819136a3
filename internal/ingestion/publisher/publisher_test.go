package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/resilience"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
	calls  int
	// hold, when set, delays every publish until it is closed.
	hold chan struct{}
}

func (r *recordingEvents) Publish(_ context.Context, e kafka.Event) error {
	if r.hold != nil {
		<-r.hold
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

// scriptedStore wraps a MemoryStore and lets tests inject failures, delays
// and a lost check-then-insert race.
type scriptedStore struct {
	*catalog.MemoryStore
	findErr      error
	insertErr    error
	insertDelay  time.Duration
	beforeInsert func()
}

func (s *scriptedStore) FindIDByTitle(ctx context.Context, title string) (string, error) {
	if s.findErr != nil {
		return "", s.findErr
	}
	return s.MemoryStore.FindIDByTitle(ctx, title)
}

func (s *scriptedStore) Insert(ctx context.Context, e *catalog.Entry) error {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	if s.insertDelay > 0 {
		select {
		case <-time.After(s.insertDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, e)
}

func payload(title string) *ingestion.AssetPayload {
	return &ingestion.AssetPayload{
		Title:       title,
		Description: "desc",
		AssetType:   ingestion.AssetN8NWorkflow,
		Content:     json.RawMessage(`{"nodes":[]}`),
		Platform:    []string{"n8n"},
		Tags:        []string{},
	}
}

func appError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}
}

func drain(t *testing.T, pub *Publisher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pub.Wait(ctx))
}

func TestIngest_CreatesAndPublishes(t *testing.T) {
	store := catalog.NewMemoryStore()
	events := &recordingEvents{}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	pub := New(store, events, Options{Metrics: m, Retry: fastRetry()})

	entry, err := pub.Ingest(context.Background(), payload("Workflow A"))
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 0, entry.DownloadCount)

	drain(t, pub)
	require.Len(t, events.events, 1)
	assert.Equal(t, entry.ID, events.events[0].Key)
	ev, ok := events.events[0].Value.(ingestion.AssetIngestedEvent)
	require.True(t, ok)
	assert.Equal(t, "Workflow A", ev.Title)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("ok")))
}

func TestIngest_DuplicateTitleConflict(t *testing.T) {
	pub := New(catalog.NewMemoryStore(), nil, Options{})
	ctx := context.Background()

	first, err := pub.Ingest(ctx, payload("same"))
	require.NoError(t, err)

	_, err = pub.Ingest(ctx, payload("same"))
	appErr := appError(t, err)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	assert.Equal(t, first.ID, appErr.Details["existing_id"])
}

func TestIngest_LostRaceAtInsert(t *testing.T) {
	mem := catalog.NewMemoryStore()
	var winner *catalog.Entry
	store := &scriptedStore{MemoryStore: mem}
	store.beforeInsert = func() {
		// another instance claims the title after our duplicate check
		store.beforeInsert = nil
		winner = catalog.NewEntry(payload("raced"))
		require.NoError(t, mem.Insert(context.Background(), winner))
	}
	pub := New(store, nil, Options{})

	_, err := pub.Ingest(context.Background(), payload("raced"))
	appErr := appError(t, err)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	assert.Equal(t, winner.ID, appErr.Details["existing_id"])
	assert.Equal(t, 1, mem.Len())
}

func TestIngest_ConcurrentSameTitleCoalesced(t *testing.T) {
	mem := catalog.NewMemoryStore()
	store := &scriptedStore{MemoryStore: mem, insertDelay: 50 * time.Millisecond}
	events := &recordingEvents{}
	pub := New(store, events, Options{Retry: fastRetry()})

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []*catalog.Entry
		conflicts []string
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			entry, err := pub.Ingest(context.Background(), payload("hot title"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created = append(created, entry)
				return
			}
			var appErr *apperrors.AppError
			if assert.ErrorAs(t, err, &appErr) {
				id, _ := appErr.Details["existing_id"].(string)
				conflicts = append(conflicts, id)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, created, 1)
	assert.Len(t, conflicts, n-1)
	for _, id := range conflicts {
		assert.Equal(t, created[0].ID, id)
	}
	assert.Equal(t, 1, mem.Len())
	drain(t, pub)
	assert.Len(t, events.events, 1)
}

func TestIngest_CancelledCallerDoesNotFailJoinedCallers(t *testing.T) {
	mem := catalog.NewMemoryStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store := &scriptedStore{MemoryStore: mem, beforeInsert: func() {
		once.Do(func() { close(entered) })
		<-release
	}}
	pub := New(store, nil, Options{StoreTimeout: 2 * time.Second})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := pub.Ingest(firstCtx, payload("shared"))
		firstErr <- err
	}()
	<-entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := pub.Ingest(context.Background(), payload("shared"))
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.Equal(t, http.StatusInternalServerError, appError(t, err).StatusCode)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared insert")
	}
	close(release)

	var err error
	select {
	case err = <-secondErr:
	case <-time.After(2 * time.Second):
		t.Fatal("joined caller never returned")
	}
	appErr := appError(t, err)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)

	id, err := mem.FindIDByTitle(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, id, appErr.Details["existing_id"])
	assert.Equal(t, 1, mem.Len())
}

func TestIngest_ReturnsBeforeSlowPublish(t *testing.T) {
	events := &recordingEvents{hold: make(chan struct{})}
	pub := New(catalog.NewMemoryStore(), events, Options{Retry: fastRetry()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := pub.Ingest(context.Background(), payload("async"))
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ingest waited on the event publish")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pub.Wait(waitCtx), context.DeadlineExceeded)

	close(events.hold)
	drain(t, pub)
	assert.Len(t, events.events, 1)
}

func TestIngest_StoreFailuresAreGeneric(t *testing.T) {
	internal := errors.New(`pq: relation "catalog_entries" does not exist`)
	tests := []struct {
		name  string
		store *scriptedStore
	}{
		{name: "find fails", store: &scriptedStore{MemoryStore: catalog.NewMemoryStore(), findErr: internal}},
		{name: "insert fails", store: &scriptedStore{MemoryStore: catalog.NewMemoryStore(), insertErr: internal}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := New(tt.store, nil, Options{})
			_, err := pub.Ingest(context.Background(), payload("x"))
			appErr := appError(t, err)
			assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
			assert.ErrorIs(t, err, apperrors.ErrPersistence)
			assert.NotContains(t, appErr.Message, "catalog_entries")
			assert.NotContains(t, err.Error(), "pq:")
		})
	}
}

func TestIngest_StoreTimeout(t *testing.T) {
	store := &scriptedStore{MemoryStore: catalog.NewMemoryStore(), insertDelay: time.Second}
	pub := New(store, nil, Options{StoreTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := pub.Ingest(context.Background(), payload("slow"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	appErr := appError(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestIngest_PublishFailureDoesNotFailIngest(t *testing.T) {
	store := catalog.NewMemoryStore()
	events := &recordingEvents{err: errors.New("broker down")}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	pub := New(store, events, Options{Metrics: m, Retry: fastRetry()})

	entry, err := pub.Ingest(context.Background(), payload("still saved"))
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	drain(t, pub)
	assert.Equal(t, 2, events.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("error")))
	assert.Equal(t, 1, store.Len())
}

func TestIngest_BreakerStopsPublishing(t *testing.T) {
	events := &recordingEvents{err: errors.New("broker down")}
	pub := New(catalog.NewMemoryStore(), events, Options{
		Retry:   resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	})
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d"} {
		_, err := pub.Ingest(ctx, payload(title))
		require.NoError(t, err)
		drain(t, pub)
	}
	assert.Equal(t, 2, events.calls, "open breaker must short-circuit later publishes")
}

func TestGet(t *testing.T) {
	pub := New(catalog.NewMemoryStore(), nil, Options{})
	ctx := context.Background()

	created, err := pub.Ingest(ctx, payload("lookup"))
	require.NoError(t, err)

	got, err := pub.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = pub.Get(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, appError(t, err).StatusCode)
}
