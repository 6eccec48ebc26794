package table

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// Sort errors.
var (
	ErrUnknownSortKey   = errors.New("unknown sort key")
	ErrUnknownDirection = errors.New("unknown sort direction")
)

// Key names a sortable column.
type Key string

// Sortable columns.
const (
	KeyID       Key = "sweet_id"
	KeyName     Key = "name"
	KeyCategory Key = "category"
	KeyPrice    Key = "price"
	KeyQuantity Key = "quantity"
)

// Direction is the sort order.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Keys returns the sortable columns in display order.
func Keys() []Key {
	return []Key{KeyID, KeyName, KeyCategory, KeyPrice, KeyQuantity}
}

// ParseKey validates a sort key.
func ParseKey(s string) (Key, error) {
	key := Key(strings.TrimSpace(s))
	if slices.Contains(Keys(), key) {
		return key, nil
	}
	return "", ErrUnknownSortKey
}

// ParseDirection validates a sort direction.
func ParseDirection(s string) (Direction, error) {
	switch dir := Direction(strings.TrimSpace(s)); dir {
	case Ascending, Descending:
		return dir, nil
	default:
		return "", ErrUnknownDirection
	}
}

// Sort returns a stably sorted copy of sweets. Numeric columns compare
// numerically and text columns use locale-aware collation. The input
// slice is not modified.
func Sort(sweets []model.Sweet, key Key, dir Direction) []model.Sweet {
	sorted := slices.Clone(sweets)
	if sorted == nil {
		sorted = []model.Sweet{}
	}

	compare := comparator(key)
	if dir == Descending {
		asc := compare
		compare = func(a, b model.Sweet) int { return -asc(a, b) }
	}

	slices.SortStableFunc(sorted, compare)
	return sorted
}

func comparator(key Key) func(a, b model.Sweet) int {
	switch key {
	case KeyName, KeyCategory:
		// Collators keep internal buffers, so each sort gets its own.
		collator := collate.New(language.Und)
		field := func(s model.Sweet) string { return s.Name }
		if key == KeyCategory {
			field = func(s model.Sweet) string { return s.Category }
		}
		return func(a, b model.Sweet) int {
			return collator.CompareString(field(a), field(b))
		}
	case KeyPrice:
		return func(a, b model.Sweet) int { return a.Price.Cmp(b.Price) }
	case KeyQuantity:
		return func(a, b model.Sweet) int { return cmp.Compare(a.Quantity, b.Quantity) }
	default:
		return func(a, b model.Sweet) int { return cmp.Compare(a.ID, b.ID) }
	}
}
