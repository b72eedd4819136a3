package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/postgres"
)

// PostgresStore persists entries in the catalog_entries table. Title
// uniqueness is enforced by the catalog_entries_title_key index.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "catalog-store"),
	}
}

func (s *PostgresStore) FindIDByTitle(ctx context.Context, title string) (string, error) {
	var id string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id FROM catalog_entries WHERE title = $1`, title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying catalog entry by title: %w", err)
	}
	return id, nil
}

// Insert writes e and reads back the generated id and created_at. When the
// unique title index rejects the row, the conflicting id is looked up inside
// the same transaction.
func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO catalog_entries
			(title, description, asset_type, platform, content, tags, is_premium, download_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		ON CONFLICT (title) DO NOTHING
		RETURNING id, created_at`,
			e.Title, e.Description, string(e.AssetType), pq.Array(e.Platform),
			[]byte(e.Content), pq.Array(e.Tags), e.IsPremium,
		).Scan(&e.ID, &e.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var existing string
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM catalog_entries WHERE title = $1`, e.Title).Scan(&existing); err != nil {
				return fmt.Errorf("resolving conflicting title: %w", err)
			}
			return &DuplicateTitleError{ExistingID: existing}
		}
		if err != nil {
			return fmt.Errorf("inserting catalog entry: %w", err)
		}
		e.DownloadCount = 0
		s.logger.Debug("catalog entry inserted", "id", e.ID, "asset_type", e.AssetType)
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		e         Entry
		assetType string
		content   []byte
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, description, asset_type, platform, content, tags, is_premium, download_count, created_at
		FROM catalog_entries WHERE id = $1`, id).Scan(
		&e.ID, &e.Title, &e.Description, &assetType, pq.Array(&e.Platform),
		&content, pq.Array(&e.Tags), &e.IsPremium, &e.DownloadCount, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying catalog entry %s: %w", id, err)
	}
	e.AssetType = ingestion.AssetType(assetType)
	e.Content = content
	if e.Platform == nil {
		e.Platform = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
