package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
// Sweets are kept in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	sweets []model.Sweet
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sweets: make([]model.Sweet, 0),
	}
}

// List returns all sweets from the store.
func (s *MemoryStore) List(ctx context.Context) ([]model.Sweet, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list sweets: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sweets := make([]model.Sweet, len(s.sweets))
	copy(sweets, s.sweets)

	return sweets, nil
}

// Search returns the sweets matching the filter.
func (s *MemoryStore) Search(ctx context.Context, filter model.SearchFilter) ([]model.Sweet, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search sweets: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.Sweet, 0, len(s.sweets))
	for _, sweet := range s.sweets {
		if filter.Matches(sweet) {
			results = append(results, sweet)
		}
	}

	return results, nil
}

// Get retrieves a sweet by its ID.
func (s *MemoryStore) Get(ctx context.Context, id int) (*model.Sweet, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get sweet: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	sweet := s.sweets[idx]
	return &sweet, nil
}

// Create adds a new sweet to the store.
func (s *MemoryStore) Create(ctx context.Context, sweet *model.Sweet) (*model.Sweet, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create sweet: %w", ctx.Err())
	default:
	}

	if sweet == nil {
		return nil, ErrNilSweet
	}

	if sweet.ID <= 0 {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(sweet.ID) >= 0 {
		return nil, ErrAlreadyExists
	}

	created := *sweet
	s.sweets = append(s.sweets, created)

	return &created, nil
}

// Delete removes a sweet from the store by its ID.
func (s *MemoryStore) Delete(ctx context.Context, id int) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete sweet: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}

	s.sweets = append(s.sweets[:idx], s.sweets[idx+1:]...)

	return nil
}

// Purchase decrements the quantity of a sweet.
func (s *MemoryStore) Purchase(ctx context.Context, id, quantity int) (*model.Sweet, error) {
	return s.adjust(ctx, "purchase sweet", id, quantity, func(sweet *model.Sweet) error {
		if sweet.Quantity < quantity {
			return ErrInsufficientStock
		}
		sweet.Quantity -= quantity
		return nil
	})
}

// Restock increments the quantity of a sweet.
func (s *MemoryStore) Restock(ctx context.Context, id, quantity int) (*model.Sweet, error) {
	return s.adjust(ctx, "restock sweet", id, quantity, func(sweet *model.Sweet) error {
		if err := checkRestock(sweet.Quantity, quantity); err != nil {
			return err
		}
		sweet.Quantity += quantity
		return nil
	})
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// adjust applies a stock change to the sweet with the given ID under the write lock.
func (s *MemoryStore) adjust(
	ctx context.Context,
	operation string,
	id, quantity int,
	apply func(*model.Sweet) error,
) (*model.Sweet, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", operation, ctx.Err())
	default:
	}

	if err := validateIDAndQuantity(id, quantity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	if err := apply(&s.sweets[idx]); err != nil {
		return nil, err
	}

	updated := s.sweets[idx]
	return &updated, nil
}

// indexOf returns the slice position of the sweet with the given ID, or -1.
// Callers must hold the lock.
func (s *MemoryStore) indexOf(id int) int {
	for i := range s.sweets {
		if s.sweets[i].ID == id {
			return i
		}
	}
	return -1
}
