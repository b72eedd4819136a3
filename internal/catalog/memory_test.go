package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
)

func samplePayload(title string) *ingestion.AssetPayload {
	return &ingestion.AssetPayload{
		Title:       title,
		Description: "desc",
		AssetType:   ingestion.AssetPromptBundle,
		Content:     json.RawMessage(`{"prompts":["a"]}`),
		Platform:    []string{},
		Tags:        []string{"instagram"},
	}
}

func TestMemoryStore_InsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e := NewEntry(samplePayload("Reel Hook Pack"))
	require.NoError(t, s.Insert(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reel Hook Pack", got.Title)
	assert.Equal(t, 0, got.DownloadCount)
	assert.Equal(t, []string{"instagram"}, got.Tags)

	id, err := s.FindIDByTitle(ctx, "Reel Hook Pack")
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.FindIDByTitle(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DuplicateTitle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := NewEntry(samplePayload("dup"))
	require.NoError(t, s.Insert(ctx, first))

	err := s.Insert(ctx, NewEntry(samplePayload("dup")))
	var dupErr *DuplicateTitleError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.ID, dupErr.ExistingID)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentSameTitle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Insert(ctx, NewEntry(samplePayload("race"))); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Insert(ctx, NewEntry(samplePayload("x"))), context.Canceled)
	assert.Equal(t, 0, s.Len())
}
