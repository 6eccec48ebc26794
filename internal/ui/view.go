// Package ui serves the sweet shop web console: it turns form posts into
// sweets API calls and repaints the inventory table.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/sweetshop/internal/config"
	"github.com/vyrodovalexey/sweetshop/internal/model"
	"github.com/vyrodovalexey/sweetshop/internal/table"
)

var repaintsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sweetshop_console_repaints_total",
		Help: "Total number of console table repaints",
	},
	[]string{"reason"},
)

// Repaint reasons.
const (
	reasonFetch = "fetch"
	reasonSort  = "sort"
)

// Broadcaster receives an event after every repaint.
type Broadcaster interface {
	Broadcast(event model.TableEvent)
}

// View holds the records shown in the table and the markup they were
// rendered to. Repaints are serialized, so the two always match.
type View struct {
	mu       sync.Mutex
	renderer *table.Renderer
	events   Broadcaster
	sweets   []model.Sweet
	rows     string
}

// NewView creates a View showing the empty table. events may be nil.
func NewView(renderer *table.Renderer, events Broadcaster) (*View, error) {
	v := &View{
		renderer: renderer,
		events:   events,
	}

	rows, err := renderer.Rows(nil)
	if err != nil {
		return nil, err
	}
	v.sweets = []model.Sweet{}
	v.rows = rows

	return v, nil
}

// Repaint replaces the table with sweets and returns the new markup.
// On a render error the table is left unchanged.
func (v *View) Repaint(sweets []model.Sweet) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.repaintLocked(sweets, reasonFetch)
}

// Sort reorders the table without fetching. With config.SortSourceRendered
// the records are first read back from the rendered rows.
func (v *View) Sort(key table.Key, dir table.Direction, source string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	records := v.sweets
	if source == config.SortSourceRendered {
		reconstructed, err := table.Reconstruct(strings.NewReader(v.rows), v.renderer.Currency())
		if err != nil {
			return "", fmt.Errorf("reading rendered rows: %w", err)
		}
		records = reconstructed
	}

	return v.repaintLocked(table.Sort(records, key, dir), reasonSort)
}

// Snapshot returns a copy of the records currently shown.
func (v *View) Snapshot() []model.Sweet {
	v.mu.Lock()
	defer v.mu.Unlock()

	return slices.Clone(v.sweets)
}

// LastRendered returns the current tbody markup.
func (v *View) LastRendered() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.rows
}

func (v *View) repaintLocked(sweets []model.Sweet, reason string) (string, error) {
	rows, err := v.renderer.Rows(sweets)
	if err != nil {
		return "", err
	}

	v.sweets = slices.Clone(sweets)
	if v.sweets == nil {
		v.sweets = []model.Sweet{}
	}
	v.rows = rows
	repaintsTotal.WithLabelValues(reason).Inc()

	if v.events != nil {
		v.events.Broadcast(model.NewRepaintedEvent(len(sweets), rows))
	}

	return rows, nil
}
