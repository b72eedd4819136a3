// Package publisher persists validated assets to the catalog store and
// publishes asset-ingested events to Kafka. It owns the duplicate-title
// check, the insert, and the coalescing of concurrent submissions that share
// a title.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/tracing"
)

const publishTimeout = 5 * time.Second

// EventPublisher delivers events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Options tunes a Publisher. Zero values take defaults.
type Options struct {
	StoreTimeout time.Duration
	Retry        resilience.RetryConfig
	Breaker      resilience.CircuitBreakerConfig
	Metrics      *metrics.Metrics
}

// Publisher coordinates catalog persistence and event production.
type Publisher struct {
	store        catalog.Store
	events       EventPublisher
	breaker      *resilience.CircuitBreaker
	retry        resilience.RetryConfig
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	group        singleflight.Group
	seq          atomic.Uint64
	inflight     sync.WaitGroup
	logger       *slog.Logger
}

// New creates a Publisher. events may be nil, in which case no events are
// produced.
func New(store catalog.Store, events EventPublisher, opts Options) *Publisher {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Breaker.OnStateChange == nil && opts.Metrics != nil {
		m := opts.Metrics
		opts.Breaker.OnStateChange = func(name string, to resilience.State) {
			m.SetBreakerState(name, int(to))
		}
	}
	return &Publisher{
		store:        store,
		events:       events,
		breaker:      resilience.NewCircuitBreaker("kafka-asset-events", opts.Breaker),
		retry:        opts.Retry,
		metrics:      opts.Metrics,
		storeTimeout: opts.StoreTimeout,
		logger:       slog.Default().With("component", "publisher"),
	}
}

// flight is the shared result of one coalesced create call. owner is the
// sequence number of the caller whose closure performed the insert.
type flight struct {
	owner uint64
	entry *catalog.Entry
}

// Ingest creates a catalog entry for p. A title that already exists, or that
// another in-flight call in this process is creating, yields a 409 AppError
// carrying existing_id. Store failures yield a generic 500 AppError; the
// cause is logged here and never returned to the caller.
//
// The shared create runs detached from any one caller's cancellation and is
// bounded by the store timeout instead. Each caller stops waiting when its
// own ctx is done.
func (pub *Publisher) Ingest(ctx context.Context, p *ingestion.AssetPayload) (*catalog.Entry, error) {
	seq := pub.seq.Add(1)
	flightCtx := context.WithoutCancel(ctx)
	// Held until this caller's flight result arrives, so Wait also covers
	// flights whose caller gave up.
	pub.inflight.Add(1)
	ch := pub.group.DoChan(p.Title, func() (any, error) {
		res, err := pub.create(flightCtx, seq, p)
		if err == nil {
			pub.publishEvent(flightCtx, res.entry)
		}
		return res, err
	})

	var r singleflight.Result
	select {
	case r = <-ch:
		pub.inflight.Done()
	case <-ctx.Done():
		go func() {
			<-ch
			pub.inflight.Done()
		}()
		logger.FromContext(ctx).Warn("caller gone before catalog write finished",
			"title", p.Title,
			"error", ctx.Err(),
		)
		return nil, apperrors.New(apperrors.ErrPersistence, http.StatusInternalServerError, "failed to persist asset")
	}
	if r.Err != nil {
		return nil, r.Err
	}
	res := r.Val.(*flight)
	if res.owner != seq {
		logger.FromContext(ctx).Info("concurrent duplicate title coalesced",
			"title", p.Title,
			"existing_id", res.entry.ID,
		)
		return nil, conflict(res.entry.ID)
	}
	return res.entry, nil
}

// Wait blocks until in-flight ingests and their queued event publishes have
// finished, or ctx is done.
// Call it before closing the event producer.
func (pub *Publisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pub.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the stored entry with the given id.
func (pub *Publisher) Get(ctx context.Context, id string) (*catalog.Entry, error) {
	var entry *catalog.Entry
	err := pub.storeCall(ctx, "get", func(ctx context.Context) error {
		var err error
		entry, err = pub.store.Get(ctx, id)
		return err
	})
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "asset not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("catalog store call failed", "operation", "get", "error", err)
		return nil, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "failed to load asset")
	}
	return entry, nil
}

func (pub *Publisher) create(ctx context.Context, seq uint64, p *ingestion.AssetPayload) (*flight, error) {
	var existingID string
	err := pub.storeCall(ctx, "find_by_title", func(ctx context.Context) error {
		var err error
		existingID, err = pub.store.FindIDByTitle(ctx, p.Title)
		return err
	})
	switch {
	case err == nil:
		return nil, conflict(existingID)
	case !errors.Is(err, catalog.ErrNotFound):
		return nil, pub.persistenceError(ctx, "find_by_title", err)
	}

	entry := catalog.NewEntry(p)
	err = pub.storeCall(ctx, "insert", func(ctx context.Context) error {
		return pub.store.Insert(ctx, entry)
	})
	var dupErr *catalog.DuplicateTitleError
	if errors.As(err, &dupErr) {
		logger.FromContext(ctx).Info("title claimed between check and insert",
			"title", p.Title,
			"existing_id", dupErr.ExistingID,
		)
		return nil, conflict(dupErr.ExistingID)
	}
	if err != nil {
		return nil, pub.persistenceError(ctx, "insert", err)
	}
	pub.logger.Debug("catalog entry created", "id", entry.ID, "asset_type", entry.AssetType)
	return &flight{owner: seq, entry: entry}, nil
}

// storeCall runs fn under the per-call store deadline, recording a child
// span and a latency sample.
func (pub *Publisher) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, "catalog."+op)
	defer span.End()
	start := time.Now()
	err := resilience.WithTimeout(ctx, pub.storeTimeout, "catalog."+op, fn)
	pub.metrics.ObserveStore(op, time.Since(start).Seconds())
	if err != nil {
		span.SetAttr("error", err.Error())
	}
	return err
}

// publishEvent queues the asset event for delivery off the request path.
func (pub *Publisher) publishEvent(ctx context.Context, entry *catalog.Entry) {
	if pub.events == nil {
		pub.metrics.ObservePublish("skipped")
		return
	}
	pub.inflight.Add(1)
	go func() {
		defer pub.inflight.Done()
		pub.deliver(ctx, entry)
	}()
}

func (pub *Publisher) deliver(ctx context.Context, entry *catalog.Entry) {
	event := kafka.Event{
		Key: entry.ID,
		Value: ingestion.AssetIngestedEvent{
			AssetID:   entry.ID,
			Title:     entry.Title,
			AssetType: entry.AssetType,
			IsPremium: entry.IsPremium,
			Tags:      entry.Tags,
			CreatedAt: entry.CreatedAt,
		},
	}

	// The entry is already committed; a client disconnect must not drop
	// the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	pubCtx, span := tracing.StartSpan(pubCtx, "kafka.publish", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log()
	}()

	err := resilience.Retry(pubCtx, "publish asset event", pub.retry, func() error {
		return pub.breaker.Execute(func() error {
			return pub.events.Publish(pubCtx, event)
		})
	})
	if err != nil {
		pub.metrics.ObservePublish("error")
		logger.FromContext(ctx).Error("failed to publish asset ingested event",
			"asset_id", entry.ID,
			"error", err,
		)
		return
	}
	pub.metrics.ObservePublish("ok")
}

func (pub *Publisher) persistenceError(ctx context.Context, op string, err error) error {
	logger.FromContext(ctx).Error("catalog store call failed",
		"operation", op,
		"error", err,
	)
	return apperrors.New(apperrors.ErrPersistence, http.StatusInternalServerError, "failed to persist asset")
}

func conflict(existingID string) error {
	return apperrors.New(apperrors.ErrDuplicateTitle, http.StatusConflict, "an asset with this title already exists").
		WithDetail("existing_id", existingID)
}
