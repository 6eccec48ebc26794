// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers on the sweets API.
	decimal.MarshalJSONWithoutQuotes = true
}

// Validation errors for Sweet.
var (
	ErrInvalidSweetID   = errors.New("sweet_id must be a positive integer")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name cannot exceed 255 characters")
	ErrInvalidName      = errors.New("name must be valid text without control characters")
	ErrEmptyCategory    = errors.New("category cannot be empty")
	ErrInvalidCategory  = errors.New("category must be valid text without control characters")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
)

// MaxNameLength bounds Sweet.Name.
const MaxNameLength = 255

// Sweet is the item record exchanged with the sweets API.
type Sweet struct {
	ID       int             `json:"sweet_id" db:"sweet_id"`
	Name     string          `json:"name" db:"name"`
	Category string          `json:"category" db:"category"`
	Price    decimal.Decimal `json:"price" db:"price"`
	Quantity int             `json:"quantity" db:"quantity"`
}

// Validate checks if the Sweet has valid field values.
func (s *Sweet) Validate() error {
	if s.ID <= 0 {
		return ErrInvalidSweetID
	}

	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}

	if len(s.Name) > MaxNameLength {
		return ErrNameTooLong
	}

	if !isDisplayText(s.Name) {
		return ErrInvalidName
	}

	if strings.TrimSpace(s.Category) == "" {
		return ErrEmptyCategory
	}

	if !isDisplayText(s.Category) {
		return ErrInvalidCategory
	}

	if s.Price.IsNegative() {
		return ErrNegativePrice
	}

	if s.Quantity < 0 {
		return ErrNegativeQuantity
	}

	return nil
}

// isDisplayText reports whether v is valid UTF-8 free of control
// characters, so it survives being rendered into the table and read back.
func isDisplayText(v string) bool {
	if !utf8.ValidString(v) {
		return false
	}
	return strings.IndexFunc(v, unicode.IsControl) < 0
}

// Equal reports whether two sweets carry the same values.
// Prices compare numerically, so 50 and 50.00 are equal.
func (s Sweet) Equal(other Sweet) bool {
	return s.ID == other.ID &&
		s.Name == other.Name &&
		s.Category == other.Category &&
		s.Price.Equal(other.Price) &&
		s.Quantity == other.Quantity
}

// SearchQuery holds the raw search form values. Empty fields are
// treated as absent.
type SearchQuery struct {
	Name     string
	Category string
	PriceMin string
	PriceMax string
}

// IsEmpty reports whether no search field is set.
func (q SearchQuery) IsEmpty() bool {
	return strings.TrimSpace(q.Name) == "" &&
		strings.TrimSpace(q.Category) == "" &&
		strings.TrimSpace(q.PriceMin) == "" &&
		strings.TrimSpace(q.PriceMax) == ""
}

// SearchFilter is the typed form of a search used by stores.
// Nil bounds are not applied.
type SearchFilter struct {
	Name     string
	Category string
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
}

// Matches reports whether the sweet satisfies every set criterion.
// Name matches as a case-insensitive substring, category as a
// case-insensitive equality, and price bounds are inclusive.
func (f SearchFilter) Matches(s Sweet) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Name)) {
		return false
	}

	if f.Category != "" && !strings.EqualFold(s.Category, f.Category) {
		return false
	}

	if f.PriceMin != nil && s.Price.LessThan(*f.PriceMin) {
		return false
	}

	if f.PriceMax != nil && s.Price.GreaterThan(*f.PriceMax) {
		return false
	}

	return true
}

// QuantityRequest is the body of purchase and restock calls.
type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

// MessageResponse is the success body of mutating calls.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreatedResponse is the success body of a create call.
type CreatedResponse struct {
	Message string `json:"message"`
	Sweet   Sweet  `json:"sweet"`
}

// ErrorResponse is the failure body of every call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TableEvent is pushed to console browsers over the websocket.
type TableEvent struct {
	Type      string    `json:"type"`
	Rows      int       `json:"rows"`
	HTML      string    `json:"html,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Table event types.
const (
	TableEventRepainted = "table_repainted"
	TableEventPing      = "ping"
)

// NewRepaintedEvent creates a repaint event carrying the new table body.
func NewRepaintedEvent(rows int, html string) TableEvent {
	return TableEvent{
		Type:      TableEventRepainted,
		Rows:      rows,
		HTML:      html,
		Timestamp: time.Now().UTC(),
	}
}
