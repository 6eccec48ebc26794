package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/model"
	"github.com/vyrodovalexey/sweetshop/internal/store"
)

// Response messages of the sweets API.
const (
	msgSweetAdded      = "Sweet added successfully"
	msgSweetDeleted    = "Sweet with ID %d deleted successfully"
	msgPurchased       = "Purchased %d of sweet ID %d"
	msgRestocked       = "Restocked %d of sweet ID %d"
	msgInvalidJSON     = "Invalid JSON data provided or missing"
	msgMissingField    = "Missing required field: '%s'. Required fields are sweet_id, name, category, price, quantity."
	msgMissingQuantity = "Missing quantity"
	msgNotFound        = "Sweet not found"
	msgDuplicateID     = "Sweet ID must be unique"
	msgNotEnoughStock  = "Not enough stock available"
	msgInvalidQuantity = "Quantity must be a positive integer"
	msgStockOverflow   = "Restock would exceed the maximum stock level"
	msgInternalError   = "An unexpected server error occurred"
	msgSearchFailed    = "Error during search"
)

// createSweetRequest detects absent fields, which a plain model.Sweet
// cannot tell apart from zero values.
type createSweetRequest struct {
	SweetID  *int             `json:"sweet_id"`
	Name     *string          `json:"name"`
	Category *string          `json:"category"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int             `json:"quantity"`
}

// missingField returns the first absent required field, or "".
func (r createSweetRequest) missingField() string {
	switch {
	case r.SweetID == nil:
		return "sweet_id"
	case r.Name == nil:
		return "name"
	case r.Category == nil:
		return "category"
	case r.Price == nil:
		return "price"
	case r.Quantity == nil:
		return "quantity"
	default:
		return ""
	}
}

func (r createSweetRequest) sweet() model.Sweet {
	return model.Sweet{
		ID:       *r.SweetID,
		Name:     *r.Name,
		Category: *r.Category,
		Price:    *r.Price,
		Quantity: *r.Quantity,
	}
}

// quantityRequest is the body of purchase and restock calls.
type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

// SweetHandler handles sweets API requests.
type SweetHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewSweetHandler creates a new SweetHandler instance.
func NewSweetHandler(s store.Store, logger *zap.Logger) *SweetHandler {
	return &SweetHandler{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes registers the sweets API routes with the router.
func (h *SweetHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Home).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/sweets", h.ListSweets).Methods(http.MethodGet)
	router.HandleFunc("/sweets", h.CreateSweet).Methods(http.MethodPost)
	router.HandleFunc("/sweets/search", h.SearchSweets).Methods(http.MethodGet)
	router.HandleFunc("/sweets/{id:[0-9]+}", h.DeleteSweet).Methods(http.MethodDelete)
	router.HandleFunc("/sweets/{id:[0-9]+}/purchase", h.PurchaseSweet).Methods(http.MethodPost)
	router.HandleFunc("/sweets/{id:[0-9]+}/restock", h.RestockSweet).Methods(http.MethodPost)
}

// Home handles GET / requests.
func (h *SweetHandler) Home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, WelcomeMessage); err != nil {
		h.logger.Debug("failed to write welcome message", zap.Error(err))
	}
}

// HealthCheck handles GET /health requests.
func (h *SweetHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ListSweets handles GET /sweets requests.
func (h *SweetHandler) ListSweets(w http.ResponseWriter, r *http.Request) {
	sweets, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sweets", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	h.writeJSON(w, http.StatusOK, sweets)
}

// SearchSweets handles GET /sweets/search requests. Price bounds that
// are not numbers are ignored.
func (h *SweetHandler) SearchSweets(w http.ResponseWriter, r *http.Request) {
	filter := parseSearchFilter(r)

	sweets, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to search sweets", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgSearchFailed)
		return
	}

	h.writeJSON(w, http.StatusOK, sweets)
}

// CreateSweet handles POST /sweets requests.
func (h *SweetHandler) CreateSweet(w http.ResponseWriter, r *http.Request) {
	var input createSweetRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	if field := input.missingField(); field != "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf(msgMissingField, field))
		return
	}

	sweet := input.sweet()
	if err := sweet.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), &sweet)
	if err != nil {
		h.handleStoreError(w, err, "create sweet")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.CreatedResponse{
		Message: msgSweetAdded,
		Sweet:   *created,
	})
}

// DeleteSweet handles DELETE /sweets/{id} requests.
func (h *SweetHandler) DeleteSweet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sweetID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.handleStoreError(w, err, "delete sweet")
		return
	}

	h.writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: fmt.Sprintf(msgSweetDeleted, id),
	})
}

// PurchaseSweet handles POST /sweets/{id}/purchase requests.
func (h *SweetHandler) PurchaseSweet(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, "purchase sweet", msgPurchased, h.store.Purchase)
}

// RestockSweet handles POST /sweets/{id}/restock requests.
func (h *SweetHandler) RestockSweet(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, "restock sweet", msgRestocked, h.store.Restock)
}

func (h *SweetHandler) adjustStock(
	w http.ResponseWriter,
	r *http.Request,
	operation, format string,
	apply func(ctx context.Context, id, quantity int) (*model.Sweet, error),
) {
	id, ok := h.sweetID(w, r)
	if !ok {
		return
	}

	var input quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Quantity == nil {
		h.writeError(w, http.StatusBadRequest, msgMissingQuantity)
		return
	}

	if _, err := apply(r.Context(), id, *input.Quantity); err != nil {
		h.handleStoreError(w, err, operation)
		return
	}

	h.writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: fmt.Sprintf(format, *input.Quantity, id),
	})
}

// sweetID reads the path id. Ids that overflow cannot exist, so they are
// reported as not found.
func (h *SweetHandler) sweetID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusNotFound, msgNotFound)
		return 0, false
	}
	return id, true
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
// Duplicate ids answer 409 and unknown ids 404 on every route.
func (h *SweetHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, msgDuplicateID)
	case errors.Is(err, store.ErrInsufficientStock):
		h.writeError(w, http.StatusBadRequest, msgNotEnoughStock)
	case errors.Is(err, store.ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, msgInvalidQuantity)
	case errors.Is(err, store.ErrStockOverflow):
		h.writeError(w, http.StatusBadRequest, msgStockOverflow)
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusNotFound, msgNotFound)
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *SweetHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an {error} response with the given status code.
func (h *SweetHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{Error: message})
}

// parseSearchFilter reads the optional search parameters.
func parseSearchFilter(r *http.Request) model.SearchFilter {
	params := r.URL.Query()
	return model.SearchFilter{
		Name:     strings.TrimSpace(params.Get("name")),
		Category: strings.TrimSpace(params.Get("category")),
		PriceMin: parsePrice(params.Get("price_min")),
		PriceMax: parsePrice(params.Get("price_max")),
	}
}

func parsePrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &price
}
