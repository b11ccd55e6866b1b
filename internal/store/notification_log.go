package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

// NotificationLogStore records proximity alerts that were shown so later
// decisions can be throttled.
type NotificationLogStore struct {
	db *sql.DB
}

func NewNotificationLogStore(db *sql.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

func (s *NotificationLogStore) Append(ctx context.Context, rec model.NotificationRecord) error {
	ids := rec.ListIDs
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal list ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_log (store_key, list_ids, fired_at) VALUES (?, ?, ?)`,
		rec.StoreKey, string(data), rec.FiredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append notification record: %w", err)
	}
	return nil
}

// Since returns records for storeKey fired at or after since, newest first.
func (s *NotificationLogStore) Since(ctx context.Context, storeKey string, since time.Time) ([]model.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_key, list_ids, fired_at FROM notification_log
		 WHERE store_key = ? AND fired_at >= ? ORDER BY fired_at DESC, id DESC`,
		storeKey, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list notification records: %w", err)
	}
	defer rows.Close()

	var records []model.NotificationRecord
	for rows.Next() {
		var rec model.NotificationRecord
		var listIDs string
		var firedAt int64
		if err := rows.Scan(&rec.ID, &rec.StoreKey, &listIDs, &firedAt); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		if err := json.Unmarshal([]byte(listIDs), &rec.ListIDs); err != nil {
			return nil, fmt.Errorf("decode list ids: %w", err)
		}
		rec.FiredAt = time.UnixMilli(firedAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records fired before the cutoff and returns how many were removed.
func (s *NotificationLogStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notification_log WHERE fired_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune notification log: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
