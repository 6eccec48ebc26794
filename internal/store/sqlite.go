package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sweets (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	sweet_id INTEGER NOT NULL UNIQUE,
	name     TEXT    NOT NULL,
	category TEXT    NOT NULL,
	price    REAL    NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 0)
)`

const selectSweets = `SELECT sweet_id, name, category, price, quantity FROM sweets`

// SQLiteStore implements Store on top of a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// SQLite allows a single writer; in-memory databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all sweets in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Sweet, error) {
	sweets := []model.Sweet{}
	if err := s.db.SelectContext(ctx, &sweets, selectSweets+` ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("list sweets: %w", err)
	}
	return sweets, nil
}

// Search returns the sweets matching the filter.
func (s *SQLiteStore) Search(ctx context.Context, filter model.SearchFilter) ([]model.Sweet, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.Name != "" {
		clauses = append(clauses, `instr(lower(name), lower(?)) > 0`)
		args = append(args, filter.Name)
	}
	if filter.Category != "" {
		clauses = append(clauses, `lower(category) = lower(?)`)
		args = append(args, filter.Category)
	}
	if filter.PriceMin != nil {
		clauses = append(clauses, `price >= ?`)
		args = append(args, filter.PriceMin.InexactFloat64())
	}
	if filter.PriceMax != nil {
		clauses = append(clauses, `price <= ?`)
		args = append(args, filter.PriceMax.InexactFloat64())
	}

	query := selectSweets
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY seq`

	sweets := []model.Sweet{}
	if err := s.db.SelectContext(ctx, &sweets, query, args...); err != nil {
		return nil, fmt.Errorf("search sweets: %w", err)
	}
	return sweets, nil
}

// Get retrieves a sweet by its ID.
func (s *SQLiteStore) Get(ctx context.Context, id int) (*model.Sweet, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	return getSweet(ctx, s.db, id)
}

// Create adds a new sweet.
func (s *SQLiteStore) Create(ctx context.Context, sweet *model.Sweet) (*model.Sweet, error) {
	if sweet == nil {
		return nil, ErrNilSweet
	}
	if sweet.ID <= 0 {
		return nil, ErrInvalidID
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(1) FROM sweets WHERE sweet_id = ?`, sweet.ID); err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}
	if exists > 0 {
		return nil, ErrAlreadyExists
	}

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO sweets (sweet_id, name, category, price, quantity)
		 VALUES (:sweet_id, :name, :category, :price, :quantity)`, sweet); err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}

	created := *sweet
	return &created, nil
}

// Delete removes a sweet by its ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return ErrInvalidID
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sweets WHERE sweet_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Purchase decrements the quantity of a sweet.
func (s *SQLiteStore) Purchase(ctx context.Context, id, quantity int) (*model.Sweet, error) {
	return s.adjust(ctx, "purchase sweet", id, quantity, -quantity)
}

// Restock increments the quantity of a sweet.
func (s *SQLiteStore) Restock(ctx context.Context, id, quantity int) (*model.Sweet, error) {
	return s.adjust(ctx, "restock sweet", id, quantity, quantity)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// adjust changes the stock of a sweet by delta inside a transaction.
func (s *SQLiteStore) adjust(ctx context.Context, operation string, id, quantity, delta int) (*model.Sweet, error) {
	if err := validateIDAndQuantity(id, quantity); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer func() { _ = tx.Rollback() }()

	sweet, err := getSweet(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if delta > 0 {
		if err := checkRestock(sweet.Quantity, delta); err != nil {
			return nil, err
		}
	} else if sweet.Quantity < -delta {
		return nil, ErrInsufficientStock
	}
	sweet.Quantity += delta

	if _, err := tx.ExecContext(ctx,
		`UPDATE sweets SET quantity = ? WHERE sweet_id = ?`, sweet.Quantity, id); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return sweet, nil
}

func getSweet(ctx context.Context, q sqlx.QueryerContext, id int) (*model.Sweet, error) {
	var sweet model.Sweet
	if err := sqlx.GetContext(ctx, q, &sweet, selectSweets+` WHERE sweet_id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sweet: %w", err)
	}
	return &sweet, nil
}
