// Package order provides access to the order backend, the remote system of
// record for sales. Client talks to the order service over HTTP; the local
// subpackage embeds the same authority in-process.
package order

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"till/internal/checkout/models"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/circuit"
	"till/pkg/platform/sentinel"
)

// Client is the HTTP SaleBackend. Backend rejection text is carried through
// untouched so operators see exactly what the order service said. Transport
// failures feed a circuit breaker so a dead backend fails fast instead of
// stacking timeouts at the register.
type Client struct {
	http    *resty.Client
	breaker *circuit.Breaker
}

type ClientOption func(*Client)

// WithTimeout overrides the default per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(timeout) }
}

// WithHTTPClient swaps the underlying resty client, e.g. for tests.
func WithHTTPClient(httpClient *resty.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// WithBreaker swaps the circuit breaker, e.g. to tune thresholds.
func WithBreaker(breaker *circuit.Breaker) ClientOption {
	return func(c *Client) { c.breaker = breaker }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("order backend base URL is required")
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		breaker: circuit.New("order-backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// exec runs one round trip behind the circuit breaker. Only transport
// failures count toward opening it; HTTP-level rejections mean the backend is
// alive and answering.
func (c *Client) exec(do func() (*resty.Response, error)) (*resty.Response, error) {
	if c.breaker.IsOpen() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "order backend circuit open")
	}
	resp, err := do()
	if err != nil {
		c.breaker.RecordFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "order backend unreachable")
	}
	c.breaker.RecordSuccess()
	return resp, nil
}

// errorBody matches the order service's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) Create(ctx context.Context, req models.CreateSaleRequest) (*models.Sale, error) {
	var sale models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&sale).
			SetError(&apiErr).
			Post("/sales")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return &sale, nil
}

func (c *Client) Get(ctx context.Context, saleID string) (*models.Sale, error) {
	var sale models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("saleID", saleID).
			SetResult(&sale).
			SetError(&apiErr).
			Get("/sales/{saleID}")
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, sentinel.ErrNotFound
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return &sale, nil
}

func (c *Client) DraftUpdate(ctx context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error) {
	var sale models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("saleID", saleID).
			SetBody(req).
			SetResult(&sale).
			SetError(&apiErr).
			Put("/sales/{saleID}/draft")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return &sale, nil
}

func (c *Client) Finalize(ctx context.Context, saleID string, req models.FinalizeRequest) (*models.Sale, error) {
	var sale models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("saleID", saleID).
			SetBody(req).
			SetResult(&sale).
			SetError(&apiErr).
			Post("/sales/{saleID}/finalize")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return &sale, nil
}

func (c *Client) ListByFulfillmentStatus(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	var sales []*models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("fulfillment_status", string(status)).
			SetResult(&sales).
			SetError(&apiErr).
			Get("/sales")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return sales, nil
}

func (c *Client) UpdateFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error) {
	var sale models.Sale
	var apiErr errorBody
	resp, err := c.exec(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("saleID", saleID).
			SetBody(f).
			SetResult(&sale).
			SetError(&apiErr).
			Put("/sales/{saleID}/fulfillment")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, toDomainError(resp.StatusCode(), apiErr)
	}
	return &sale, nil
}

// toDomainError converts a backend rejection into a coded error, keeping the
// backend's message verbatim.
func toDomainError(status int, body errorBody) error {
	message := body.Message
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusBadRequest:
		return dErrors.New(dErrors.CodeInvalidInput, message)
	case http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, message)
	case http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, message)
	case http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, message)
	case http.StatusConflict:
		return dErrors.New(dErrors.CodeConflict, message)
	case http.StatusUnprocessableEntity:
		return dErrors.New(dErrors.CodeUnprocessable, message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return dErrors.New(dErrors.CodeUnavailable, message)
	default:
		return dErrors.Newf(dErrors.CodeInternal, "order backend returned status %d", status)
	}
}
