package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

// ErrItemNotFound is returned when no item exists for an id.
var ErrItemNotFound = errors.New("item not found")

// SaveItem persists an item's text and metadata. Embeddings live in the
// vector index, not here; the row is the durable source for rebuilding the
// text index at startup.
func (s *Store) SaveItem(ctx context.Context, item memory.Item) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	return s.withRetry(ctx, "save item", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO items (id, text, created_at, tags) VALUES (?, ?, ?, ?)`,
			item.ID, item.Text, item.CreatedAt.UnixMilli(), string(tags),
		)
		return err
	})
}

// UpdateItemTags replaces an item's tags. Tags are the only mutable item
// field; text and timestamps never change after creation.
func (s *Store) UpdateItemTags(ctx context.Context, id string, tags []string) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	return s.withRetry(ctx, "update item tags", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE items SET tags = ? WHERE id = ?`, string(encoded), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

// GetItem returns one item by id, or ErrItemNotFound.
func (s *Store) GetItem(ctx context.Context, id string) (memory.Item, error) {
	var item memory.Item
	err := s.withRetry(ctx, "get item", func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, text, created_at, tags FROM items WHERE id = ?`, id)
		got, err := scanItem(row)
		if err != nil {
			return err
		}
		item = got
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Item{}, ErrItemNotFound
	}
	return item, err
}

// GetItems returns the items for the given ids, in the given order. Missing
// ids are skipped rather than erroring: retrieval results may reference
// items deleted by an expiry policy between search and fetch.
func (s *Store) GetItems(ctx context.Context, ids []string) ([]memory.Item, error) {
	items := make([]memory.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ListItems returns every item in insertion order. Used at startup to
// rebuild the in-memory text index.
func (s *Store) ListItems(ctx context.Context) ([]memory.Item, error) {
	var items []memory.Item
	err := s.withRetry(ctx, "list items", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, text, created_at, tags FROM items ORDER BY rowid`)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	return items, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (memory.Item, error) {
	var (
		item      memory.Item
		createdAt int64
		tags      string
	)
	if err := row.Scan(&item.ID, &item.Text, &createdAt, &tags); err != nil {
		return memory.Item{}, err
	}
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return memory.Item{}, fmt.Errorf("decoding tags for %s: %w", item.ID, err)
	}
	return item, nil
}
