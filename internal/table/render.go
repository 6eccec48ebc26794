// Package table renders sweets as HTML table rows, reads rendered rows
// back into records and sorts record sequences.
package table

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// DefaultCurrency prefixes rendered prices when no symbol is configured.
const DefaultCurrency = "₹"

// NoticeKind classifies a banner shown above the table.
type NoticeKind string

// Notice kinds.
const (
	NoticeSuccess    NoticeKind = "success"
	NoticeError      NoticeKind = "error"
	NoticeValidation NoticeKind = "validation"
)

// Notice is an inline banner replacing blocking dialogs.
type Notice struct {
	Kind NoticeKind
	Text string
}

// SweetForm holds the raw add-sweet form values so they can be
// redisplayed after a failed create.
type SweetForm struct {
	ID       string
	Name     string
	Category string
	Price    string
	Quantity string
}

// PageData is the input of RenderPage.
type PageData struct {
	Notice   Notice
	Form     SweetForm
	Search   model.SearchQuery
	SortKey  Key
	SortKeys []Key
	// Rows is tbody markup produced by RenderRows.
	Rows template.HTML
}

// Renderer executes the console templates.
type Renderer struct {
	currency  string
	templates *template.Template
}

// NewRenderer parses the embedded templates. An empty currency falls
// back to DefaultCurrency.
func NewRenderer(currency string) (*Renderer, error) {
	if currency == "" {
		currency = DefaultCurrency
	}

	r := &Renderer{currency: currency}

	tmpl, err := template.New("table").
		Funcs(template.FuncMap{"price": r.FormatPrice}).
		ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	r.templates = tmpl

	return r, nil
}

// Currency returns the symbol prefixed to prices.
func (r *Renderer) Currency() string {
	return r.currency
}

// FormatPrice returns the price as displayed in the table.
func (r *Renderer) FormatPrice(price decimal.Decimal) string {
	return r.currency + price.String()
}

// RenderRows writes one row per sweet, or a single placeholder row when
// there are none.
func (r *Renderer) RenderRows(w io.Writer, sweets []model.Sweet) error {
	if err := r.templates.ExecuteTemplate(w, "rows", sweets); err != nil {
		return fmt.Errorf("rendering rows: %w", err)
	}
	return nil
}

// Rows renders the rows into a string.
func (r *Renderer) Rows(sweets []model.Sweet) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderRows(&buf, sweets); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPage writes the full console page.
func (r *Renderer) RenderPage(w io.Writer, data PageData) error {
	if len(data.SortKeys) == 0 {
		data.SortKeys = Keys()
	}
	if err := r.templates.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return nil
}
