package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/config"
	"github.com/vyrodovalexey/sweetshop/internal/handler"
	"github.com/vyrodovalexey/sweetshop/internal/server"
	"github.com/vyrodovalexey/sweetshop/internal/store"
)

// newBackend serves the sweets API over a seeded memory store.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	s := store.NewMemoryStore()
	if _, err := store.Seed(context.Background(), s, store.SeedSweets()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	cfg := config.Default()
	cfg.MetricsEnabled = false

	api := server.New(cfg, zap.NewNop(), "api", handler.NewSweetHandler(s, zap.NewNop()))
	backend := httptest.NewServer(api.Router())
	t.Cleanup(backend.Close)
	return backend
}

func TestNewConsoleServer(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid base url", "http://127.0.0.1:5000", false},
		{"relative base url", "/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := config.Default()
			cfg.APIBaseURL = tt.baseURL

			// Act
			srv, err := newConsoleServer(cfg, zap.NewNop())

			// Assert
			if (err != nil) != tt.wantErr {
				t.Fatalf("newConsoleServer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && srv == nil {
				t.Error("newConsoleServer() returned nil server")
			}
		})
	}
}

func TestConsole_EndToEnd(t *testing.T) {
	// Arrange
	backend := newBackend(t)
	cfg := config.Default()
	cfg.APIBaseURL = backend.URL
	cfg.MetricsEnabled = false

	srv, err := newConsoleServer(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newConsoleServer() error = %v", err)
	}
	router := srv.Router()

	post := func(path string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	// Act
	index := httptest.NewRecorder()
	router.ServeHTTP(index, httptest.NewRequest(http.MethodGet, "/", nil))
	created := post("/sweets", url.Values{
		"sweet_id": {"1004"},
		"name":     {"Ladoo"},
		"category": {"Flour-Based"},
		"price":    {"12.50"},
		"quantity": {"40"},
	})
	purchased := post("/sweets/1004/purchase", url.Values{"quantity": {"3"}})
	sorted := post("/sort", url.Values{"key": {"price"}, "order": {"asc"}})

	// Assert
	if index.Code != http.StatusOK || !strings.Contains(index.Body.String(), "Kaju Katli") {
		t.Fatalf("index status = %d, body missing seed data", index.Code)
	}
	if created.Code != http.StatusOK || !strings.Contains(created.Body.String(), "Sweet added successfully") {
		t.Errorf("create status = %d, body = %s", created.Code, created.Body.String())
	}
	if purchased.Code != http.StatusOK || !strings.Contains(purchased.Body.String(), "Purchased 3 of sweet ID 1004") {
		t.Errorf("purchase status = %d, body = %s", purchased.Code, purchased.Body.String())
	}
	if sorted.Code != http.StatusOK {
		t.Fatalf("sort status = %d", sorted.Code)
	}
	body := sorted.Body.String()
	ladoo := strings.Index(body, `data-sweet-id="1004"`)
	kaju := strings.Index(body, `data-sweet-id="1001"`)
	if ladoo < 0 || kaju < 0 || ladoo > kaju {
		t.Error("cheapest sweet should render before the most expensive one")
	}
	if !strings.Contains(body, "<td>37</td>") {
		t.Error("purchased stock should be refreshed from the API")
	}
}
