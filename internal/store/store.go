// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// Store errors.
var (
	ErrNotFound          = errors.New("sweet not found")
	ErrAlreadyExists     = errors.New("sweet ID must be unique")
	ErrInsufficientStock = errors.New("not enough stock available")
	ErrInvalidID         = errors.New("invalid sweet ID")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrNilSweet          = errors.New("sweet cannot be nil")
	ErrStockOverflow     = errors.New("restock would exceed the maximum stock level")
)

// Store defines the interface for sweet storage operations.
type Store interface {
	// List returns all sweets in insertion order.
	List(ctx context.Context) ([]model.Sweet, error)

	// Search returns the sweets matching every set criterion of the filter.
	Search(ctx context.Context, filter model.SearchFilter) ([]model.Sweet, error)

	// Get retrieves a sweet by its ID.
	Get(ctx context.Context, id int) (*model.Sweet, error)

	// Create adds a new sweet. The ID is supplied by the caller and must be unique.
	Create(ctx context.Context, sweet *model.Sweet) (*model.Sweet, error)

	// Delete removes a sweet by its ID.
	Delete(ctx context.Context, id int) error

	// Purchase decrements the stock of a sweet, failing when stock is short.
	Purchase(ctx context.Context, id, quantity int) (*model.Sweet, error)

	// Restock increments the stock of a sweet.
	Restock(ctx context.Context, id, quantity int) (*model.Sweet, error)

	// Close releases resources held by the store.
	Close() error
}

// SeedSweets returns the catalogue loaded into a fresh store for local runs.
func SeedSweets() []model.Sweet {
	return []model.Sweet{
		{ID: 1001, Name: "Kaju Katli", Category: "Nut-Based", Price: decimal.NewFromInt(50), Quantity: 20},
		{ID: 1002, Name: "Gulab Jamun", Category: "Milk-Based", Price: decimal.NewFromInt(40), Quantity: 15},
		{ID: 1003, Name: "Rasgulla", Category: "Milk-Based", Price: decimal.NewFromInt(25), Quantity: 30},
	}
}

// Seed inserts sweets into the store, skipping IDs that already exist.
// It returns the number of sweets inserted.
func Seed(ctx context.Context, s Store, sweets []model.Sweet) (int, error) {
	inserted := 0
	for i := range sweets {
		if _, err := s.Create(ctx, &sweets[i]); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// checkRestock rejects a restock that would overflow the stock counter.
func checkRestock(current, quantity int) error {
	if quantity > math.MaxInt-current {
		return ErrStockOverflow
	}
	return nil
}

func validateIDAndQuantity(id, quantity int) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
