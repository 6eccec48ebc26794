// Package client is the data fetch layer of the web console: it turns
// console actions into calls against the sweets API and decodes the
// responses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/middleware"
	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// Client errors.
var (
	ErrInvalidQuantity   = errors.New("quantity must be a positive whole number")
	ErrTransport         = errors.New("sweets API unreachable")
	ErrMalformedResponse = errors.New("malformed response from sweets API")
)

// Outcome labels for client metrics.
const (
	outcomeSuccess   = "success"
	outcomeAPIError  = "api_error"
	outcomeTransport = "transport_error"
	outcomeMalformed = "malformed_response"
)

var (
	clientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweetshop_client_requests_total",
			Help: "Total number of calls made to the sweets API",
		},
		[]string{"operation", "outcome"},
	)

	clientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweetshop_client_request_duration_seconds",
			Help:    "Duration of calls made to the sweets API in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// APIError is returned when the sweets API answers with a non-2xx status.
// Message is the backend's error field, verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Config configures a Client.
type Config struct {
	// BaseURL is the root of the sweets API, e.g. http://127.0.0.1:5000.
	BaseURL string
	// Timeout bounds each call. Zero means no timeout.
	Timeout time.Duration
}

// Client calls the sweets API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client. A nil httpClient uses a fresh http.Client with
// the configured timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// List returns every sweet.
func (c *Client) List(ctx context.Context) ([]model.Sweet, error) {
	var sweets []model.Sweet
	if err := c.do(ctx, "list", http.MethodGet, "/sweets", nil, nil, &sweets); err != nil {
		return nil, err
	}
	return nonNil(sweets), nil
}

// Search returns the sweets matching the query. Only non-empty fields
// are sent as query parameters.
func (c *Client) Search(ctx context.Context, q model.SearchQuery) ([]model.Sweet, error) {
	var sweets []model.Sweet
	if err := c.do(ctx, "search", http.MethodGet, "/sweets/search", SearchParams(q), nil, &sweets); err != nil {
		return nil, err
	}
	return nonNil(sweets), nil
}

// Create adds a sweet and returns the backend confirmation message.
func (c *Client) Create(ctx context.Context, sweet model.Sweet) (string, error) {
	var resp model.MessageResponse
	if err := c.do(ctx, "create", http.MethodPost, "/sweets", nil, sweet, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Delete removes a sweet and returns the backend confirmation message.
func (c *Client) Delete(ctx context.Context, id int) (string, error) {
	var resp model.MessageResponse
	if err := c.do(ctx, "delete", http.MethodDelete, sweetPath(id, ""), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Purchase decrements the stock of a sweet. Non-positive quantities are
// rejected without calling the API.
func (c *Client) Purchase(ctx context.Context, id, quantity int) (string, error) {
	return c.adjust(ctx, "purchase", id, quantity)
}

// Restock increments the stock of a sweet. Non-positive quantities are
// rejected without calling the API.
func (c *Client) Restock(ctx context.Context, id, quantity int) (string, error) {
	return c.adjust(ctx, "restock", id, quantity)
}

func (c *Client) adjust(ctx context.Context, operation string, id, quantity int) (string, error) {
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}

	var resp model.MessageResponse
	body := model.QuantityRequest{Quantity: quantity}
	if err := c.do(ctx, operation, http.MethodPost, sweetPath(id, operation), nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ParseQuantity validates user input for purchase and restock. Only a
// well-formed positive base-10 integer is accepted.
func ParseQuantity(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.HasPrefix(trimmed, "+") {
		return 0, ErrInvalidQuantity
	}

	quantity, err := strconv.Atoi(trimmed)
	if err != nil || quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	return quantity, nil
}

// SearchParams builds the search query string, omitting empty fields.
func SearchParams(q model.SearchQuery) url.Values {
	params := url.Values{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			params.Set(key, v)
		}
	}

	set("name", q.Name)
	set("category", q.Category)
	set("price_min", q.PriceMin)
	set("price_max", q.PriceMax)

	return params
}

// do performs one call. A non-2xx answer is decoded into an *APIError;
// otherwise the body is decoded into out.
func (c *Client) do(
	ctx context.Context,
	operation, method, path string,
	query url.Values,
	in, out any,
) error {
	start := time.Now()
	outcome := outcomeSuccess
	defer func() {
		clientRequestsTotal.WithLabelValues(operation, outcome).Inc()
		clientRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	req, err := c.newRequest(ctx, method, path, query, in)
	if err != nil {
		outcome = outcomeTransport
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = outcomeTransport
		c.logger.Warn("sweets API call failed",
			zap.String("operation", operation),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w: %w", operation, ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug("sweets API call",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = outcomeAPIError
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = outcomeMalformed
		return fmt.Errorf("%s: %w: %w", operation, ErrMalformedResponse, err)
	}

	return nil
}

func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	query url.Values,
	in any,
) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	return req, nil
}

// decodeAPIError reads the {error} body of a failed call. A body that is
// not JSON still yields an *APIError carrying the status text.
func decodeAPIError(resp *http.Response) error {
	var body model.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    body.Error,
	}
}

func sweetPath(id int, action string) string {
	path := "/sweets/" + strconv.Itoa(id)
	if action != "" {
		path += "/" + action
	}
	return path
}

func nonNil(sweets []model.Sweet) []model.Sweet {
	if sweets == nil {
		return []model.Sweet{}
	}
	return sweets
}
