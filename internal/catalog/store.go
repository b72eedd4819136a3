// Package catalog persists catalog entries created by the ingest webhook.
// Entries are append-only: this service creates them and never updates or
// deletes them.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
)

var (
	ErrNotFound = errors.New("catalog entry not found")
)

// DuplicateTitleError is returned by Insert when the store already holds an
// entry with the same title.
type DuplicateTitleError struct {
	ExistingID string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("title already used by catalog entry %s", e.ExistingID)
}

// Entry is a persisted catalog record.
type Entry struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	AssetType     ingestion.AssetType `json:"asset_type"`
	Platform      []string            `json:"platform"`
	Content       json.RawMessage     `json:"content"`
	Tags          []string            `json:"tags"`
	IsPremium     bool                `json:"is_premium"`
	DownloadCount int                 `json:"download_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewEntry builds an unsaved entry from a validated payload. ID and
// CreatedAt are assigned by the store.
func NewEntry(p *ingestion.AssetPayload) *Entry {
	return &Entry{
		Title:         p.Title,
		Description:   p.Description,
		AssetType:     p.AssetType,
		Platform:      p.Platform,
		Content:       p.Content,
		Tags:          p.Tags,
		IsPremium:     p.IsPremium,
		DownloadCount: 0,
	}
}

// Store is the persistence contract used by the ingest pipeline.
type Store interface {
	// FindIDByTitle returns the id of the entry with exactly this title, or
	// ErrNotFound.
	FindIDByTitle(ctx context.Context, title string) (string, error)
	// Insert saves e, setting its ID and CreatedAt. A title collision
	// yields *DuplicateTitleError.
	Insert(ctx context.Context, e *Entry) error
	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)
	Ping(ctx context.Context) error
}
