package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/basket/internal/model"
)

type SupermarketStore struct {
	db *sql.DB
}

func NewSupermarketStore(db *sql.DB) *SupermarketStore {
	return &SupermarketStore{db: db}
}

const supermarketCols = `id, name, address, latitude, longitude, created_at`

func scanSupermarket(scanner interface{ Scan(...any) error }) (*model.Supermarket, error) {
	var sm model.Supermarket
	var lat, lon sql.NullFloat64
	if err := scanner.Scan(&sm.ID, &sm.Name, &sm.Address, &lat, &lon, &sm.CreatedAt); err != nil {
		return nil, err
	}
	if lat.Valid {
		sm.Latitude = &lat.Float64
	}
	if lon.Valid {
		sm.Longitude = &lon.Float64
	}
	return &sm, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func (s *SupermarketStore) Create(ctx context.Context, name, address string, lat, lon *float64) (*model.Supermarket, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO supermarkets (name, address, latitude, longitude) VALUES (?, ?, ?, ?)`,
		name, address, nullFloat(lat), nullFloat(lon),
	)
	if err != nil {
		return nil, fmt.Errorf("insert supermarket: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SupermarketStore) GetByID(ctx context.Context, id int64) (*model.Supermarket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+supermarketCols+` FROM supermarkets WHERE id = ?`, id)
	sm, err := scanSupermarket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get supermarket: %w", err)
	}
	return sm, nil
}

func (s *SupermarketStore) List(ctx context.Context) ([]model.Supermarket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supermarketCols+` FROM supermarkets ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list supermarkets: %w", err)
	}
	defer rows.Close()

	var out []model.Supermarket
	for rows.Next() {
		sm, err := scanSupermarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supermarket: %w", err)
		}
		out = append(out, *sm)
	}
	return out, rows.Err()
}

func (s *SupermarketStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM supermarkets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete supermarket: %w", err)
	}
	return nil
}
