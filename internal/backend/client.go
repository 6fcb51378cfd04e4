package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	opSendText     = "lang_chain.text"
	opClearHistory = "lang_chain.clear_history"

	instrumentationName = "supportchat/backend"
)

var (
	errMissingAnswer = errors.New("missing answer.cleanedResult")
)

// Client talks to the conversational backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	duration   metric.Float64Histogram
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMeter replaces the global meter used for the request duration histogram
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		c.meter = meter
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.duration, err = newDurationHistogram(c.meter)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newDurationHistogram(meter metric.Meter) (metric.Float64Histogram, error) {
	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return histogram, nil
}

// SendText submits a user message and returns the model reply
func (c *Client) SendText(ctx context.Context, text string) (Reply, error) {
	jsonData, err := json.Marshal(TextRequest{Text: text})
	if err != nil {
		return Reply{}, &Error{Op: opSendText, Kind: KindDecode, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	body, err := c.do(ctx, opSendText, http.MethodPost, TextPath, jsonData)
	if err != nil {
		return Reply{}, err
	}

	answer, err := parseAnswer(body)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: answer}, nil
}

// ClearHistory asks the backend to drop its conversation memory and
// returns the confirmation message, if any
func (c *Client) ClearHistory(ctx context.Context) (string, error) {
	body, err := c.do(ctx, opClearHistory, http.MethodDelete, ClearHistoryPath, nil)
	if err != nil {
		return "", err
	}

	var resp ClearHistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Debug("clear history response is not json", "error", err)
		return "", nil
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, op)
	defer span.End()

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, c.fail(span, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to build url: %w", err)})
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, c.fail(span, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to create request: %w", err)})
	}

	requestID := uuid.NewString()
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", endpoint),
		attribute.String("request.id", requestID),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(span, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to send request: %w", err)})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("failed to read response: %w", err)})
	}

	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Int("http.response.status_code", resp.StatusCode),
	))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	c.logger.Debug("backend request finished",
		"op", op,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(span, &Error{
			Op:         op,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s - %s", resp.Status, truncate(string(body), 512)),
		})
	}
	return body, nil
}

func (c *Client) fail(span trace.Span, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return err
}

func parseAnswer(body []byte) (string, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", &Error{Op: opSendText, Kind: KindDecode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	var answer map[string]json.RawMessage
	if raw, ok := root["answer"]; !ok || json.Unmarshal(raw, &answer) != nil {
		return "", &Error{Op: opSendText, Kind: KindShape, Err: errMissingAnswer}
	}

	var cleaned string
	if raw, ok := answer["cleanedResult"]; !ok || json.Unmarshal(raw, &cleaned) != nil || cleaned == "" {
		return "", &Error{Op: opSendText, Kind: KindShape, Err: errMissingAnswer}
	}
	return cleaned, nil
}

// truncate keeps at most n bytes of s without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
