package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SlotStore persists opaque serialized values keyed by namespace.
type SlotStore struct {
	db *sql.DB
}

func NewSlotStore(db *sql.DB) *SlotStore {
	return &SlotStore{db: db}
}

// Get returns the stored value; ok is false when the namespace has never been written.
func (s *SlotStore) Get(ctx context.Context, namespace string) (value []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM local_slots WHERE namespace = ?`, namespace).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot %q: %w", namespace, err)
	}
	return value, true, nil
}

func (s *SlotStore) Put(ctx context.Context, namespace string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_slots (namespace, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, string(value), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put slot %q: %w", namespace, err)
	}
	return nil
}

func (s *SlotStore) Delete(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_slots WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("delete slot %q: %w", namespace, err)
	}
	return nil
}

// Namespaces lists every namespace that holds a value, sorted.
func (s *SlotStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace FROM local_slots ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
