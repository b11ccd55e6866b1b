// Package store persists the cloud service's list and item documents.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/basket/internal/remote"
)

// Store keeps every user's documents in one SQLite database. Documents are
// addressed by their server id or by the client id the daemon assigned.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

const listCols = `id, client_id, name, archived, created_at, updated_at`

func scanList(scanner interface{ Scan(...any) error }) (*remote.ListDoc, error) {
	var d remote.ListDoc
	var archived int
	if err := scanner.Scan(&d.ID, &d.ClientID, &d.Name, &archived, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Archived = archived != 0
	return &d, nil
}

const itemCols = `id, client_id, list_id, name, quantity, category, completed, photo_url, position, created_at, updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (*remote.ItemDoc, error) {
	var d remote.ItemDoc
	var completed int
	err := scanner.Scan(
		&d.ID, &d.ClientID, &d.ListID, &d.Name, &d.Quantity, &d.Category,
		&completed, &d.PhotoURL, &d.Position, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Completed = completed != 0
	return &d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// resolve returns the server id of the document matching ref, or "" when
// there is none.
func (s *Store) resolve(ctx context.Context, table, userID, ref string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE user_id = ? AND (id = ? OR client_id = ?) ORDER BY id = ? DESC LIMIT 1`,
		userID, ref, ref, ref,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s %s: %w", table, ref, err)
	}
	return id, nil
}

// --- Lists ---

// CreateList inserts a list, or overwrites the user's list with the same
// client id so retried creates do not duplicate.
func (s *Store) CreateList(ctx context.Context, userID string, doc remote.ListDoc) (*remote.ListDoc, error) {
	id := uuid.NewString()
	if doc.ClientID == "" {
		doc.ClientID = id
	}
	now := s.nowMillis()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = doc.CreatedAt
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO cloud_lists (id, user_id, client_id, name, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, client_id) DO UPDATE SET
		   name = excluded.name,
		   archived = excluded.archived,
		   updated_at = excluded.updated_at
		 RETURNING `+listCols,
		id, userID, doc.ClientID, doc.Name, boolInt(doc.Archived), doc.CreatedAt, doc.UpdatedAt,
	)
	created, err := scanList(row)
	if err != nil {
		return nil, fmt.Errorf("upsert list: %w", err)
	}
	return created, nil
}

func (s *Store) getList(ctx context.Context, id string) (*remote.ListDoc, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listCols+` FROM cloud_lists WHERE id = ?`, id)
	d, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return d, nil
}

// UpdateList applies patch and returns the list, or nil when ref matches
// none of the user's lists.
func (s *Store) UpdateList(ctx context.Context, userID, ref string, patch remote.ListPatch) (*remote.ListDoc, error) {
	id, err := s.resolve(ctx, "cloud_lists", userID, ref)
	if err != nil || id == "" {
		return nil, err
	}

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, boolInt(*patch.Archived))
	}
	updatedAt := patch.UpdatedAt
	if updatedAt == 0 {
		updatedAt = s.nowMillis()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt, id)

	if _, err := s.db.ExecContext(ctx, `UPDATE cloud_lists SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update list: %w", err)
	}
	return s.getList(ctx, id)
}

// DeleteList removes the list and its items. A missing list is not an error.
func (s *Store) DeleteList(ctx context.Context, userID, ref string) error {
	id, err := s.resolve(ctx, "cloud_lists", userID, ref)
	if err != nil || id == "" {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cloud_lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

// ListAll returns the user's lists with their items ordered by position.
func (s *Store) ListAll(ctx context.Context, userID string) ([]remote.ListDoc, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listCols+` FROM cloud_lists WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var lists []remote.ListDoc
	index := make(map[string]int)
	for rows.Next() {
		d, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		index[d.ID] = len(lists)
		lists = append(lists, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM cloud_items WHERE user_id = ? ORDER BY position ASC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		it, err := scanItem(itemRows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if i, ok := index[it.ListID]; ok {
			lists[i].Items = append(lists[i].Items, *it)
		}
	}
	return lists, itemRows.Err()
}

// --- Items ---

// CreateItem upserts an item on the user's client id under the list matching
// listRef. It returns nil when the list does not exist.
func (s *Store) CreateItem(ctx context.Context, userID, listRef string, doc remote.ItemDoc) (*remote.ItemDoc, error) {
	listID, err := s.resolve(ctx, "cloud_lists", userID, listRef)
	if err != nil || listID == "" {
		return nil, err
	}

	id := uuid.NewString()
	if doc.ClientID == "" {
		doc.ClientID = id
	}
	if doc.Quantity < 1 {
		doc.Quantity = 1
	}
	now := s.nowMillis()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = doc.CreatedAt
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO cloud_items (id, list_id, user_id, client_id, name, quantity, category, completed, photo_url, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, client_id) DO UPDATE SET
		   list_id = excluded.list_id,
		   name = excluded.name,
		   quantity = excluded.quantity,
		   category = excluded.category,
		   completed = excluded.completed,
		   photo_url = excluded.photo_url,
		   position = excluded.position,
		   updated_at = excluded.updated_at
		 RETURNING `+itemCols,
		id, listID, userID, doc.ClientID, doc.Name, doc.Quantity, doc.Category,
		boolInt(doc.Completed), doc.PhotoURL, doc.Position, doc.CreatedAt, doc.UpdatedAt,
	)
	created, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}
	return created, nil
}

func (s *Store) getItem(ctx context.Context, id string) (*remote.ItemDoc, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM cloud_items WHERE id = ?`, id)
	d, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return d, nil
}

// UpdateItem applies patch and returns the item, or nil when ref matches
// none of the user's items.
func (s *Store) UpdateItem(ctx context.Context, userID, ref string, patch remote.ItemPatch) (*remote.ItemDoc, error) {
	id, err := s.resolve(ctx, "cloud_items", userID, ref)
	if err != nil || id == "" {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Quantity != nil {
		set("quantity", *patch.Quantity)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Completed != nil {
		set("completed", boolInt(*patch.Completed))
	}
	if patch.PhotoURL != nil {
		set("photo_url", *patch.PhotoURL)
	}
	if patch.Position != nil {
		set("position", *patch.Position)
	}
	updatedAt := patch.UpdatedAt
	if updatedAt == 0 {
		updatedAt = s.nowMillis()
	}
	set("updated_at", updatedAt)
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, `UPDATE cloud_items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return s.getItem(ctx, id)
}

// DeleteItem removes the item. A missing item is not an error.
func (s *Store) DeleteItem(ctx context.Context, userID, ref string) error {
	id, err := s.resolve(ctx, "cloud_items", userID, ref)
	if err != nil || id == "" {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cloud_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}
