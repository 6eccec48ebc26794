package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/middleware"
	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// recordedRequest captures what the fake backend received.
type recordedRequest struct {
	method    string
	path      string
	query     map[string][]string
	body      []byte
	requestID string
}

// fakeBackend answers every call with a fixed status and body and records
// the last request.
type fakeBackend struct {
	server *httptest.Server
	calls  atomic.Int32
	last   atomic.Pointer[recordedRequest]
}

func newFakeBackend(t *testing.T, status int, body string) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.calls.Add(1)
		payload, _ := io.ReadAll(r.Body)
		fb.last.Store(&recordedRequest{
			method:    r.Method,
			path:      r.URL.Path,
			query:     r.URL.Query(),
			body:      payload,
			requestID: r.Header.Get(middleware.RequestIDHeader),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(fb.server.Close)

	return fb
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := New(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"absolute url", "http://127.0.0.1:5000", false},
		{"trailing slash", "http://127.0.0.1:5000/", false},
		{"relative url", "/sweets", true},
		{"garbage", "://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			c, err := New(Config{BaseURL: tt.baseURL}, nil, zap.NewNop())

			// Assert
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Error("New() returned nil client")
			}
		})
	}
}

func TestClient_List(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
	}{
		{
			name:      "two sweets",
			body:      `[{"sweet_id":1001,"name":"Kaju Katli","category":"Nut-Based","price":50.0,"quantity":20},{"sweet_id":1002,"name":"Gulab Jamun","category":"Milk-Based","price":40.5,"quantity":15}]`,
			wantCount: 2,
		},
		{name: "empty list", body: `[]`, wantCount: 0},
		{name: "null list", body: `null`, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			backend := newFakeBackend(t, http.StatusOK, tt.body)
			c := newTestClient(t, backend.server.URL)

			// Act
			sweets, err := c.List(context.Background())

			// Assert
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if sweets == nil {
				t.Fatal("List() returned nil slice")
			}
			if len(sweets) != tt.wantCount {
				t.Errorf("List() returned %d sweets, want %d", len(sweets), tt.wantCount)
			}
			last := backend.last.Load()
			if last.method != http.MethodGet || last.path != "/sweets" {
				t.Errorf("request = %s %s, want GET /sweets", last.method, last.path)
			}
		})
	}
}

func TestClient_ForwardsRequestID(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusOK, `[]`)
	c := newTestClient(t, backend.server.URL)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	// Act
	_, err := c.List(ctx)

	// Assert
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := backend.last.Load().requestID; got != "req-42" {
		t.Errorf("forwarded request ID = %q, want req-42", got)
	}
}

func TestClient_List_DecodesPrices(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusOK,
		`[{"sweet_id":1002,"name":"Gulab Jamun","category":"Milk-Based","price":40.5,"quantity":15}]`)
	c := newTestClient(t, backend.server.URL)

	// Act
	sweets, err := c.List(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !sweets[0].Price.Equal(decimal.RequireFromString("40.5")) {
		t.Errorf("Price = %s, want 40.5", sweets[0].Price)
	}
}

func TestClient_Search_OmitsEmptyParams(t *testing.T) {
	tests := []struct {
		name        string
		query       model.SearchQuery
		wantParams  map[string]string
		wantMissing []string
	}{
		{
			name:        "only price min",
			query:       model.SearchQuery{PriceMin: "10"},
			wantParams:  map[string]string{"price_min": "10"},
			wantMissing: []string{"name", "category", "price_max"},
		},
		{
			name:        "name and category",
			query:       model.SearchQuery{Name: "kaju katli", Category: "Nut-Based", PriceMax: "  "},
			wantParams:  map[string]string{"name": "kaju katli", "category": "Nut-Based"},
			wantMissing: []string{"price_min", "price_max"},
		},
		{
			name:        "all fields",
			query:       model.SearchQuery{Name: "a", Category: "b", PriceMin: "1", PriceMax: "2"},
			wantParams:  map[string]string{"name": "a", "category": "b", "price_min": "1", "price_max": "2"},
			wantMissing: nil,
		},
		{
			name:        "no fields",
			query:       model.SearchQuery{},
			wantParams:  map[string]string{},
			wantMissing: []string{"name", "category", "price_min", "price_max"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			backend := newFakeBackend(t, http.StatusOK, `[]`)
			c := newTestClient(t, backend.server.URL)

			// Act
			_, err := c.Search(context.Background(), tt.query)

			// Assert
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			last := backend.last.Load()
			if last.path != "/sweets/search" {
				t.Errorf("path = %s, want /sweets/search", last.path)
			}
			for key, want := range tt.wantParams {
				if got := last.query[key]; len(got) != 1 || got[0] != want {
					t.Errorf("param %s = %v, want %s", key, got, want)
				}
			}
			for _, key := range tt.wantMissing {
				if _, present := last.query[key]; present {
					t.Errorf("param %s should be omitted, got %v", key, last.query[key])
				}
			}
		})
	}
}

func TestClient_Create(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusCreated,
		`{"message":"Sweet added successfully","sweet":{"sweet_id":1004}}`)
	c := newTestClient(t, backend.server.URL)
	sweet := model.Sweet{
		ID: 1004, Name: "Ladoo", Category: "Flour-Based", Price: decimal.RequireFromString("12.5"), Quantity: 40,
	}

	// Act
	msg, err := c.Create(context.Background(), sweet)

	// Assert
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if msg != "Sweet added successfully" {
		t.Errorf("Create() message = %q", msg)
	}

	last := backend.last.Load()
	if last.method != http.MethodPost || last.path != "/sweets" {
		t.Errorf("request = %s %s, want POST /sweets", last.method, last.path)
	}
	var sent map[string]any
	if err := json.Unmarshal(last.body, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["sweet_id"] != float64(1004) || sent["price"] != 12.5 || sent["quantity"] != float64(40) {
		t.Errorf("request body = %s", last.body)
	}
}

func TestClient_Create_APIError(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusConflict, `{"error":"Sweet ID must be unique"}`)
	c := newTestClient(t, backend.server.URL)

	// Act
	msg, err := c.Create(context.Background(), model.Sweet{ID: 1001})

	// Assert
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Create() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusConflict)
	}
	if apiErr.Error() != "Sweet ID must be unique" {
		t.Errorf("Error() = %q, want backend message verbatim", apiErr.Error())
	}
	if msg != "" {
		t.Errorf("Create() message = %q, want empty", msg)
	}
}

func TestClient_Delete(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusOK, `{"message":"Sweet with ID 1001 deleted successfully"}`)
	c := newTestClient(t, backend.server.URL)

	// Act
	msg, err := c.Delete(context.Background(), 1001)

	// Assert
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if msg != "Sweet with ID 1001 deleted successfully" {
		t.Errorf("Delete() message = %q", msg)
	}
	last := backend.last.Load()
	if last.method != http.MethodDelete || last.path != "/sweets/1001" {
		t.Errorf("request = %s %s, want DELETE /sweets/1001", last.method, last.path)
	}
}

func TestClient_PurchaseAndRestock(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Client) (string, error)
		wantPath string
	}{
		{
			name:     "purchase",
			call:     func(c *Client) (string, error) { return c.Purchase(context.Background(), 1001, 3) },
			wantPath: "/sweets/1001/purchase",
		},
		{
			name:     "restock",
			call:     func(c *Client) (string, error) { return c.Restock(context.Background(), 1001, 3) },
			wantPath: "/sweets/1001/restock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			backend := newFakeBackend(t, http.StatusOK, `{"message":"ok"}`)
			c := newTestClient(t, backend.server.URL)

			// Act
			msg, err := tt.call(c)

			// Assert
			if err != nil {
				t.Fatalf("call error = %v", err)
			}
			if msg != "ok" {
				t.Errorf("message = %q, want ok", msg)
			}
			last := backend.last.Load()
			if last.method != http.MethodPost || last.path != tt.wantPath {
				t.Errorf("request = %s %s, want POST %s", last.method, last.path, tt.wantPath)
			}
			if string(last.body) != `{"quantity":3}` {
				t.Errorf("body = %s, want {\"quantity\":3}", last.body)
			}
		})
	}
}

func TestClient_Purchase_InvalidQuantitySkipsNetwork(t *testing.T) {
	for _, qty := range []int{0, -3} {
		// Arrange
		backend := newFakeBackend(t, http.StatusOK, `{"message":"ok"}`)
		c := newTestClient(t, backend.server.URL)

		// Act
		_, purchaseErr := c.Purchase(context.Background(), 1001, qty)
		_, restockErr := c.Restock(context.Background(), 1001, qty)

		// Assert
		if !errors.Is(purchaseErr, ErrInvalidQuantity) || !errors.Is(restockErr, ErrInvalidQuantity) {
			t.Errorf("quantity %d: errors = %v, %v, want ErrInvalidQuantity", qty, purchaseErr, restockErr)
		}
		if calls := backend.calls.Load(); calls != 0 {
			t.Errorf("quantity %d: backend calls = %d, want 0", qty, calls)
		}
	}
}

func TestClient_Purchase_InsufficientStock(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusBadRequest, `{"error":"Not enough stock available"}`)
	c := newTestClient(t, backend.server.URL)

	// Act
	_, err := c.Purchase(context.Background(), 1001, 500)

	// Assert
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Not enough stock available" {
		t.Errorf("Purchase() error = %v, want backend message", err)
	}
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := newTestClient(t, backend.server.URL)

	// Act
	_, err := c.Delete(context.Background(), 1)

	// Assert
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Delete() error = %v, want *APIError", err)
	}
	if apiErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("Message = %q, want status text", apiErr.Message)
	}
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusOK, `not json`)
	c := newTestClient(t, backend.server.URL)

	// Act
	sweets, err := c.List(context.Background())

	// Assert
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("List() error = %v, want ErrMalformedResponse", err)
	}
	if sweets != nil {
		t.Errorf("List() = %v, want nil on error", sweets)
	}
}

func TestClient_TransportError(t *testing.T) {
	// Arrange
	backend := newFakeBackend(t, http.StatusOK, `[]`)
	url := backend.server.URL
	backend.server.Close()
	c := newTestClient(t, url)

	// Act
	_, err := c.List(context.Background())

	// Assert
	if !errors.Is(err, ErrTransport) {
		t.Errorf("List() error = %v, want ErrTransport", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Act
	_, err = c.List(context.Background())

	// Assert
	if !errors.Is(err, ErrTransport) {
		t.Errorf("List() error = %v, want ErrTransport", err)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "1", want: 1},
		{input: " 12 ", want: 12},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
		{input: "2.5", wantErr: true},
		{input: "+4", wantErr: true},
		{input: "1e3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			// Act
			got, err := ParseQuantity(tt.input)

			// Assert
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuantity) {
					t.Errorf("ParseQuantity(%q) error = %v, want ErrInvalidQuantity", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuantity(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseQuantity(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
