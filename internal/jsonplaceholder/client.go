package jsonplaceholder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"todo-system/internal/domain/external"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://jsonplaceholder.typicode.com/"
	DefaultUserAgent = "TodoSystem/1.0"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// Client talks to the JSONPlaceholder /todos resource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retries    int
	userAgent  string
	backoff    time.Duration
	logger     *logger.Logger
}

func NewClient(cfg Config, l *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retries:    cfg.RetryCount,
		userAgent:  cfg.UserAgent,
		backoff:    cfg.Backoff,
		logger:     l,
	}
}

func (c *Client) List(ctx context.Context) ([]external.Todo, error) {
	var todos []external.Todo
	if err := c.do(ctx, http.MethodGet, "/todos", nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (c *Client) Get(ctx context.Context, id int) (external.Todo, error) {
	var t external.Todo
	err := c.do(ctx, http.MethodGet, "/todos/"+strconv.Itoa(id), nil, &t)
	return t, err
}

func (c *Client) Create(ctx context.Context, t external.Todo) (external.Todo, error) {
	var created external.Todo
	err := c.do(ctx, http.MethodPost, "/todos", t, &created)
	return created, err
}

func (c *Client) Update(ctx context.Context, id int, t external.Todo) (external.Todo, error) {
	t.ID = id
	var updated external.Todo
	err := c.do(ctx, http.MethodPut, "/todos/"+strconv.Itoa(id), t, &updated)
	return updated, err
}

func (c *Client) Delete(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+strconv.Itoa(id), nil, nil)
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("external api returned status %d", e.status)
}

// do sends the request, retrying transport failures and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return mapContextErr(ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		lastErr = c.attempt(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			break
		}
		c.logger.Warn(ctx, "external api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return classify(lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out interface{}) (err error) {
	ctx, span := otel.Tracer("todo-system/jsonplaceholder").Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return &statusError{status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", todo_errors.ErrUpstream, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, todo_errors.ErrUpstream) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", todo_errors.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusNotFound:
			return todo_errors.ErrNotFound
		case se.status == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", todo_errors.ErrInvalidInput, err)
		}
	}
	if errors.Is(err, todo_errors.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %v", todo_errors.ErrUpstream, err)
}

func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", todo_errors.ErrTimeout, err)
	}
	return err
}
