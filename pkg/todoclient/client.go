// Package todoclient is a Go client for the todo HTTP API.
package todoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	todo_errors "todo-system/pkg/errors"
)

const (
	todosPath = "/api/v1/todos"
	pageSize  = 100
)

type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// APIError is returned for non-2xx responses. It unwraps to the matching
// sentinel from pkg/errors.
type APIError struct {
	Status  int
	Message string
	Code    string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("todo api: status %d", e.Status)
	}
	return fmt.Sprintf("todo api: %s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	return todo_errors.FromStatus(e.Status)
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors"`
}

type page struct {
	Items      []Todo `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for an access token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var res struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &res); err != nil {
		return err
	}
	c.token = res.Token
	return nil
}

// GetAll follows the paged listing until every todo has been read.
func (c *Client) GetAll(ctx context.Context) ([]Todo, error) {
	all := make([]Todo, 0)
	for n := 1; ; n++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(n))
		q.Set("pageSize", strconv.Itoa(pageSize))

		var p page
		if err := c.do(ctx, http.MethodGet, todosPath+"?"+q.Encode(), nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if n >= p.TotalPages || len(p.Items) == 0 {
			return all, nil
		}
	}
}

func (c *Client) Get(ctx context.Context, id string) (Todo, error) {
	var t Todo
	err := c.do(ctx, http.MethodGet, todosPath+"/"+url.PathEscape(id), nil, &t)
	return t, err
}

func (c *Client) Create(ctx context.Context, title string) (Todo, error) {
	var t Todo
	err := c.do(ctx, http.MethodPost, todosPath, map[string]string{"title": title}, &t)
	return t, err
}

// Update changes the title and leaves the other fields as stored.
func (c *Client) Update(ctx context.Context, id, title string) (Todo, error) {
	var t Todo
	body := map[string]string{"id": id, "title": title}
	err := c.do(ctx, http.MethodPut, todosPath+"/"+url.PathEscape(id), body, &t)
	return t, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, todosPath+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: env.Error, Code: env.Code, Fields: env.Errors}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
