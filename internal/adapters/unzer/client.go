package unzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	pkghttp "github.com/kevin07696/payment-reconciler/pkg/http"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the production API host
	DefaultBaseURL = "https://api.unzerdirect.com"

	// APIVersion is sent as Accept-Version on every request
	APIVersion = "v10"

	// CallbackURLHeader tells the gateway where to post the outcome of an action
	CallbackURLHeader = "UnzerDirect-Callback-Url"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second
)

// Config holds the gateway credentials
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Response is a successful gateway reply
type Response struct {
	Header     http.Header
	Body       json.RawMessage
	StatusCode int
}

// Client is the HTTP client of the gateway REST API.
// Requests are never retried; every failure is a *domain.GatewayError.
type Client struct {
	httpClient ports.HTTPClient
	logger     ports.Logger
	tracer     trace.Tracer
	baseURL    string
	authHeader string
}

var _ ports.PaymentGateway = (*Client)(nil)

// NewClient creates a client with the given HTTP transport
func NewClient(cfg Config, httpClient ports.HTTPClient, logger ports.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer("payment-reconciler/unzer"),
		baseURL:    baseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.APIKey)),
	}
}

// NewClientWithDefaults creates a client with the pooled gateway transport
func NewClientWithDefaults(cfg Config, logger ports.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClient(cfg, pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), timeout), logger)
}

// Send performs one request. params is JSON-encoded as the body when non-nil.
// headers are added next to the fixed ones and never replace them.
func (c *Client) Send(ctx context.Context, method, resource string, params interface{}, headers map[string]string) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, "unzer."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("gateway.resource", resource),
		))
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordGatewayRequest(operationName(method, resource), result, time.Since(start).Seconds())
		span.End()
	}()

	gwErr := func(status int, body string, cause error) error {
		return &domain.GatewayError{Method: method, Resource: resource, StatusCode: status, Body: body, Err: cause}
	}

	var body io.Reader
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, gwErr(0, "", fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+resource, body)
	if err != nil {
		return nil, gwErr(0, "", fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Accept-Version", APIVersion)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Add(k, v)
	}

	if c.logger != nil {
		c.logger.Debug("Sending gateway request",
			ports.String("method", method),
			ports.String("resource", resource))
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gwErr(0, "", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gwErr(httpResp.StatusCode, "", fmt.Errorf("read response body: %w", err))
	}
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))

	switch httpResp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		if c.logger != nil {
			c.logger.Warn("Gateway request rejected",
				ports.String("method", method),
				ports.String("resource", resource),
				ports.Int("status_code", httpResp.StatusCode))
		}
		return nil, gwErr(httpResp.StatusCode, string(raw), nil)
	}

	if !json.Valid(raw) {
		return nil, gwErr(httpResp.StatusCode, string(raw), fmt.Errorf("response is not valid JSON"))
	}

	return &Response{
		Header:     httpResp.Header,
		Body:       raw,
		StatusCode: httpResp.StatusCode,
	}, nil
}

// CreatePayment implements ports.PaymentGateway
func (c *Client) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Notification, error) {
	resp, err := c.Send(ctx, http.MethodPost, "/payments", req, nil)
	if err != nil {
		return nil, err
	}
	return decodePayment(http.MethodPost, "/payments", resp)
}

// UpdatePayment implements ports.PaymentGateway
func (c *Client) UpdatePayment(ctx context.Context, paymentID string, req ports.UpdatePaymentRequest) (*domain.Notification, error) {
	resource := paymentResource(paymentID, "")
	resp, err := c.Send(ctx, http.MethodPatch, resource, req, nil)
	if err != nil {
		return nil, err
	}
	return decodePayment(http.MethodPatch, resource, resp)
}

// CreatePaymentLink implements ports.PaymentGateway
func (c *Client) CreatePaymentLink(ctx context.Context, paymentID string, req ports.CreateLinkRequest) (string, error) {
	resource := paymentResource(paymentID, "link")
	resp, err := c.Send(ctx, http.MethodPut, resource, req, nil)
	if err != nil {
		return "", err
	}

	var link struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body, &link); err != nil || link.URL == "" {
		return "", &domain.GatewayError{
			Method:     http.MethodPut,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Err:        fmt.Errorf("response carries no link url"),
		}
	}
	return link.URL, nil
}

// GetPayment implements ports.PaymentGateway
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.Notification, error) {
	resource := paymentResource(paymentID, "")
	resp, err := c.Send(ctx, http.MethodGet, resource, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePayment(http.MethodGet, resource, resp)
}

type amountParams struct {
	Amount int64 `json:"amount"`
}

// Capture implements ports.PaymentGateway
func (c *Client) Capture(ctx context.Context, paymentID string, amount int64, callbackURL string) error {
	_, err := c.Send(ctx, http.MethodPost, paymentResource(paymentID, "capture"),
		amountParams{Amount: amount}, callbackHeaders(callbackURL))
	return err
}

// Cancel implements ports.PaymentGateway
func (c *Client) Cancel(ctx context.Context, paymentID string, callbackURL string) error {
	_, err := c.Send(ctx, http.MethodPost, paymentResource(paymentID, "cancel"),
		nil, callbackHeaders(callbackURL))
	return err
}

// Refund implements ports.PaymentGateway
func (c *Client) Refund(ctx context.Context, paymentID string, amount int64, callbackURL string) error {
	_, err := c.Send(ctx, http.MethodPost, paymentResource(paymentID, "refund"),
		amountParams{Amount: amount}, callbackHeaders(callbackURL))
	return err
}

func decodePayment(method, resource string, resp *Response) (*domain.Notification, error) {
	n, err := domain.DecodeNotification(resp.Body)
	if err != nil {
		return nil, &domain.GatewayError{
			Method:     method,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Err:        err,
		}
	}
	return n, nil
}

func paymentResource(paymentID, action string) string {
	resource := "/payments/" + paymentID
	if action != "" {
		resource += "/" + action
	}
	return resource
}

func callbackHeaders(callbackURL string) map[string]string {
	if callbackURL == "" {
		return nil
	}
	return map[string]string{CallbackURLHeader: callbackURL}
}

// operationName keeps metric labels bounded by dropping the payment id
func operationName(method, resource string) string {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	switch {
	case len(parts) >= 3:
		return parts[2]
	case len(parts) == 2:
		return strings.ToLower(method) + "_payment"
	default:
		return "create_payment"
	}
}
