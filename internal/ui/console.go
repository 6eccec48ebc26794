package ui

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/client"
	"github.com/vyrodovalexey/sweetshop/internal/handler"
	"github.com/vyrodovalexey/sweetshop/internal/model"
	"github.com/vyrodovalexey/sweetshop/internal/table"
)

// Notice texts shown for local failures.
const (
	msgInvalidQuantity  = "Enter a valid quantity."
	msgInvalidSweet     = "Enter a valid sweet ID, price and quantity."
	msgInvalidSweetID   = "Invalid sweet ID."
	msgInvalidSortKey   = "Choose a column to sort by."
	msgInvalidSortOrder = "Sort order must be asc or desc."
	msgUnreachable      = "Could not reach the sweets API. Please try again."
	msgMalformed        = "The sweets API returned an unexpected response."
	msgRenderFailed     = "Could not render the sweets table."
)

// SweetsAPI is the data fetch layer used by the console.
type SweetsAPI interface {
	List(ctx context.Context) ([]model.Sweet, error)
	Search(ctx context.Context, q model.SearchQuery) ([]model.Sweet, error)
	Create(ctx context.Context, sweet model.Sweet) (string, error)
	Delete(ctx context.Context, id int) (string, error)
	Purchase(ctx context.Context, id, quantity int) (string, error)
	Restock(ctx context.Context, id, quantity int) (string, error)
}

// Console serves the web console pages and actions.
type Console struct {
	api        SweetsAPI
	view       *View
	renderer   *table.Renderer
	sortSource string
	logger     *zap.Logger
}

// NewConsole creates a Console. sortSource is one of the config.SortSource
// values.
func NewConsole(api SweetsAPI, view *View, renderer *table.Renderer, sortSource string, logger *zap.Logger) *Console {
	return &Console{
		api:        api,
		view:       view,
		renderer:   renderer,
		sortSource: sortSource,
		logger:     logger,
	}
}

// RegisterRoutes registers the console routes with the router.
func (c *Console) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", c.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", c.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/table", c.Table).Methods(http.MethodGet)
	router.HandleFunc("/sweets", c.CreateSweet).Methods(http.MethodPost)
	router.HandleFunc("/sweets/{id:[0-9]+}/delete", c.DeleteSweet).Methods(http.MethodPost)
	router.HandleFunc("/sweets/{id:[0-9]+}/purchase", c.PurchaseSweet).Methods(http.MethodPost)
	router.HandleFunc("/sweets/{id:[0-9]+}/restock", c.RestockSweet).Methods(http.MethodPost)
	router.HandleFunc("/search", c.SearchSweets).Methods(http.MethodGet)
	router.HandleFunc("/search/clear", c.ClearSearch).Methods(http.MethodPost)
	router.HandleFunc("/sort", c.SortSweets).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (c *Console) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	response := handler.HealthResponse{Status: "healthy", Version: handler.Version}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}

// Index handles GET / by listing every sweet.
func (c *Console) Index(w http.ResponseWriter, r *http.Request) {
	status, notice := c.refresh(r.Context(), "list", func(ctx context.Context) ([]model.Sweet, error) {
		return c.api.List(ctx)
	})
	c.renderPage(w, status, table.PageData{Notice: notice})
}

// Table handles GET /table by returning the current tbody markup.
func (c *Console) Table(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, c.view.LastRendered()); err != nil {
		c.logger.Debug("failed to write table", zap.Error(err))
	}
}

// CreateSweet handles POST /sweets.
func (c *Console) CreateSweet(w http.ResponseWriter, r *http.Request) {
	form := table.SweetForm{
		ID:       r.PostFormValue("sweet_id"),
		Name:     r.PostFormValue("name"),
		Category: r.PostFormValue("category"),
		Price:    r.PostFormValue("price"),
		Quantity: r.PostFormValue("quantity"),
	}

	sweet, err := parseSweetForm(form)
	if err != nil {
		c.logger.Debug("rejected sweet form", zap.Error(err))
		c.renderPage(w, http.StatusBadRequest, table.PageData{
			Notice: table.Notice{Kind: table.NoticeValidation, Text: msgInvalidSweet},
			Form:   form,
		})
		return
	}

	msg, err := c.api.Create(r.Context(), sweet)
	if err != nil {
		status, notice := c.failure("create", err)
		c.renderPage(w, status, table.PageData{Notice: notice, Form: form})
		return
	}

	c.afterMutation(w, r, msg)
}

// DeleteSweet handles POST /sweets/{id}/delete.
func (c *Console) DeleteSweet(w http.ResponseWriter, r *http.Request) {
	id, ok := c.sweetID(w, r)
	if !ok {
		return
	}

	msg, err := c.api.Delete(r.Context(), id)
	if err != nil {
		status, notice := c.failure("delete", err)
		c.renderPage(w, status, table.PageData{Notice: notice})
		return
	}

	c.afterMutation(w, r, msg)
}

// PurchaseSweet handles POST /sweets/{id}/purchase.
func (c *Console) PurchaseSweet(w http.ResponseWriter, r *http.Request) {
	c.adjustStock(w, r, "purchase", c.api.Purchase)
}

// RestockSweet handles POST /sweets/{id}/restock.
func (c *Console) RestockSweet(w http.ResponseWriter, r *http.Request) {
	c.adjustStock(w, r, "restock", c.api.Restock)
}

func (c *Console) adjustStock(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	call func(ctx context.Context, id, quantity int) (string, error),
) {
	id, ok := c.sweetID(w, r)
	if !ok {
		return
	}

	quantity, err := client.ParseQuantity(r.PostFormValue("quantity"))
	if err != nil {
		c.renderPage(w, http.StatusBadRequest, table.PageData{
			Notice: table.Notice{Kind: table.NoticeValidation, Text: msgInvalidQuantity},
		})
		return
	}

	msg, err := call(r.Context(), id, quantity)
	if err != nil {
		status, notice := c.failure(operation, err)
		c.renderPage(w, status, table.PageData{Notice: notice})
		return
	}

	c.afterMutation(w, r, msg)
}

// SearchSweets handles GET /search.
func (c *Console) SearchSweets(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := model.SearchQuery{
		Name:     params.Get("name"),
		Category: params.Get("category"),
		PriceMin: params.Get("price_min"),
		PriceMax: params.Get("price_max"),
	}

	status, notice := c.refresh(r.Context(), "search", func(ctx context.Context) ([]model.Sweet, error) {
		return c.api.Search(ctx, query)
	})
	c.renderPage(w, status, table.PageData{Notice: notice, Search: query})
}

// ClearSearch handles POST /search/clear by listing every sweet again.
func (c *Console) ClearSearch(w http.ResponseWriter, r *http.Request) {
	c.Index(w, r)
}

// SortSweets handles POST /sort. The table is reordered without calling
// the sweets API.
func (c *Console) SortSweets(w http.ResponseWriter, r *http.Request) {
	key, err := table.ParseKey(r.PostFormValue("key"))
	if err != nil {
		c.renderPage(w, http.StatusBadRequest, table.PageData{
			Notice: table.Notice{Kind: table.NoticeValidation, Text: msgInvalidSortKey},
		})
		return
	}

	dir, err := table.ParseDirection(r.PostFormValue("order"))
	if err != nil {
		c.renderPage(w, http.StatusBadRequest, table.PageData{
			Notice:  table.Notice{Kind: table.NoticeValidation, Text: msgInvalidSortOrder},
			SortKey: key,
		})
		return
	}

	if _, err := c.view.Sort(key, dir, c.sortSource); err != nil {
		c.logger.Error("failed to sort table", zap.String("key", string(key)), zap.Error(err))
		c.renderPage(w, http.StatusInternalServerError, table.PageData{
			Notice:  table.Notice{Kind: table.NoticeError, Text: msgRenderFailed},
			SortKey: key,
		})
		return
	}

	c.renderPage(w, http.StatusOK, table.PageData{SortKey: key})
}

// afterMutation shows the backend message and repaints from a fresh list.
func (c *Console) afterMutation(w http.ResponseWriter, r *http.Request, msg string) {
	status, notice := c.refresh(r.Context(), "list", func(ctx context.Context) ([]model.Sweet, error) {
		return c.api.List(ctx)
	})
	if notice.Text == "" {
		notice = table.Notice{Kind: table.NoticeSuccess, Text: msg}
	} else {
		// The write went through; only the table is stale.
		notice.Text = msg + " " + notice.Text
	}
	c.renderPage(w, status, table.PageData{Notice: notice})
}

// refresh fetches records and repaints. On failure the table is left as
// it was and the returned notice describes the error.
func (c *Console) refresh(
	ctx context.Context,
	operation string,
	fetch func(ctx context.Context) ([]model.Sweet, error),
) (int, table.Notice) {
	sweets, err := fetch(ctx)
	if err != nil {
		return c.failure(operation, err)
	}

	if _, err := c.view.Repaint(sweets); err != nil {
		c.logger.Error("failed to repaint table", zap.Error(err))
		return http.StatusInternalServerError, table.Notice{Kind: table.NoticeError, Text: msgRenderFailed}
	}

	return http.StatusOK, table.Notice{}
}

// failure maps a data fetch error to a response status and notice.
func (c *Console) failure(operation string, err error) (int, table.Notice) {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		c.logger.Info("sweets API rejected call",
			zap.String("operation", operation),
			zap.Int("status", apiErr.StatusCode),
			zap.String("error", apiErr.Message),
		)
		status := apiErr.StatusCode
		if status < http.StatusBadRequest || status > 599 {
			status = http.StatusBadGateway
		}
		return status, table.Notice{Kind: table.NoticeError, Text: apiErr.Message}
	case errors.Is(err, client.ErrInvalidQuantity):
		return http.StatusBadRequest, table.Notice{Kind: table.NoticeValidation, Text: msgInvalidQuantity}
	case errors.Is(err, client.ErrMalformedResponse):
		c.logger.Error("malformed sweets API response", zap.String("operation", operation), zap.Error(err))
		return http.StatusBadGateway, table.Notice{Kind: table.NoticeError, Text: msgMalformed}
	default:
		c.logger.Error("sweets API call failed", zap.String("operation", operation), zap.Error(err))
		return http.StatusBadGateway, table.Notice{Kind: table.NoticeError, Text: msgUnreachable}
	}
}

func (c *Console) sweetID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		c.renderPage(w, http.StatusBadRequest, table.PageData{
			Notice: table.Notice{Kind: table.NoticeValidation, Text: msgInvalidSweetID},
		})
		return 0, false
	}
	return id, true
}

func (c *Console) renderPage(w http.ResponseWriter, status int, data table.PageData) {
	// Rows are produced by the table templates and are already escaped.
	data.Rows = template.HTML(c.view.LastRendered()) //nolint:gosec // trusted template output

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.renderer.RenderPage(w, data); err != nil {
		c.logger.Error("failed to render page", zap.Error(err))
	}
}

// parseSweetForm converts the add-sweet form into a record.
func parseSweetForm(form table.SweetForm) (model.Sweet, error) {
	id, err := strconv.Atoi(strings.TrimSpace(form.ID))
	if err != nil || id <= 0 {
		return model.Sweet{}, model.ErrInvalidSweetID
	}

	price, err := decimal.NewFromString(strings.TrimSpace(form.Price))
	if err != nil {
		return model.Sweet{}, err
	}
	if price.IsNegative() {
		return model.Sweet{}, model.ErrNegativePrice
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(form.Quantity))
	if err != nil {
		return model.Sweet{}, err
	}
	if quantity < 0 {
		return model.Sweet{}, model.ErrNegativeQuantity
	}

	return model.Sweet{
		ID:       id,
		Name:     form.Name,
		Category: form.Category,
		Price:    price,
		Quantity: quantity,
	}, nil
}
