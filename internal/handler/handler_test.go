package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"todo-system/internal/domain/external"
	"todo-system/internal/middleware"
	"todo-system/internal/repository"
	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

const handlerSchema = `
CREATE TABLE todos (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	completed BOOLEAN NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	refresh_token_hash TEXT,
	refresh_token_expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	retry_count INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	processed_at TIMESTAMP
);
`

type stubExternalAPI struct{}

func (stubExternalAPI) List(ctx context.Context) ([]external.Todo, error) {
	return []external.Todo{{ID: 1, UserID: 1, Title: "delectus aut autem"}}, nil
}

func (stubExternalAPI) Get(ctx context.Context, id int) (external.Todo, error) {
	if id != 1 {
		return external.Todo{}, todo_errors.ErrNotFound
	}
	return external.Todo{ID: 1, UserID: 1, Title: "delectus aut autem"}, nil
}

func (stubExternalAPI) Create(ctx context.Context, t external.Todo) (external.Todo, error) {
	t.ID = 201
	return t, nil
}

func (stubExternalAPI) Update(ctx context.Context, id int, t external.Todo) (external.Todo, error) {
	t.ID = id
	return t, nil
}

func (stubExternalAPI) Delete(ctx context.Context, id int) error { return nil }

type testAPI struct {
	router *gin.Engine
	token  string
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(handlerSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := logger.NewNop()
	store := repository.NewStore(db)
	auth := services.NewAuthService(store.Users, services.NewBcryptHasher(bcrypt.MinCost), services.AuthConfig{
		EmailPasswordEnabled: true,
		JWTSecret:            []byte("handler-test"),
		Issuer:               "todo-system",
		Audience:             "todo-system-clients",
		AccessTTL:            time.Hour,
		RefreshTTL:           time.Hour,
	}, l)

	authH := NewAuthHandler(auth, l)
	todoH := NewTodoHandler(services.NewTodoService(db, store.Todos, store.Outbox, l), l)
	extH := NewExternalTodoHandler(services.NewExternalTodoService(stubExternalAPI{}, nil, l), l)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", authH.Register)
	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/refresh", authH.Refresh)

	protected := v1.Group("", middleware.AuthMiddleware(auth))
	protected.GET("/auth/me", authH.Me)
	protected.GET("/auth/users/:email", authH.UserByEmail)
	protected.GET("/todos", todoH.List)
	protected.POST("/todos", todoH.Create)
	protected.GET("/todos/:id", todoH.Get)
	protected.PUT("/todos/:id", todoH.Update)
	protected.DELETE("/todos/:id", todoH.Delete)
	protected.GET("/external-todos", extH.List)
	protected.POST("/external-todos", extH.Create)
	protected.GET("/external-todos/:id", extH.Get)

	api := &testAPI{router: r}
	api.token = api.login(t)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/register", httpdto.RegisterRequest{
		Email: "tester@example.com", Password: "Secret1!", DisplayName: "Tester",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/auth/users/tester@example.com" {
		t.Errorf("register Location = %q", loc)
	}

	w = a.do(t, http.MethodPost, "/api/v1/auth/login", httpdto.LoginRequest{Email: "tester@example.com", Password: "Secret1!"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var resp httpdto.Response[httpdto.LoginResponse]
	decodeInto(t, w, &resp)
	return resp.Data.Token
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestTodoHandler_CRUD(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/todos", httpdto.CreateTodoRequest{Title: "Buy milk"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created httpdto.Response[httpdto.TodoResponse]
	decodeInto(t, w, &created)
	if created.Data.Title != "Buy milk" {
		t.Errorf("created title = %q", created.Data.Title)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/todos/"+created.Data.ID {
		t.Errorf("Location = %q", loc)
	}

	done := true
	w = api.do(t, http.MethodPut, "/api/v1/todos/"+created.Data.ID, httpdto.UpdateTodoRequest{
		ID: created.Data.ID, Title: "Buy oat milk", Completed: &done, Version: created.Data.Version,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodGet, "/api/v1/todos?page=1&pageSize=5", nil)
	var page httpdto.Response[httpdto.PagedResponse[httpdto.TodoResponse]]
	decodeInto(t, w, &page)
	if page.Data.TotalCount != 1 || page.Data.Items[0].Title != "Buy oat milk" || !page.Data.Items[0].Completed {
		t.Errorf("list = %+v", page.Data)
	}

	w = api.do(t, http.MethodPost, "/api/v1/todos", httpdto.CreateTodoRequest{Title: "  Walk dog  "})
	var padded httpdto.Response[httpdto.TodoResponse]
	decodeInto(t, w, &padded)
	if w.Code != http.StatusCreated || padded.Data.Title != "  Walk dog  " {
		t.Errorf("padded create = %d %q, want title unchanged", w.Code, padded.Data.Title)
	}

	w = api.do(t, http.MethodDelete, "/api/v1/todos/"+created.Data.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = api.do(t, http.MethodGet, "/api/v1/todos/"+created.Data.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestTodoHandler_Errors(t *testing.T) {
	api := setupAPI(t)
	missing := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"blank title", http.MethodPost, "/api/v1/todos", httpdto.CreateTodoRequest{Title: " "}, http.StatusBadRequest, ""},
		{"title too long", http.MethodPost, "/api/v1/todos", httpdto.CreateTodoRequest{Title: strings.Repeat("x", 201)}, http.StatusBadRequest, ""},
		{"id mismatch", http.MethodPut, "/api/v1/todos/" + missing, httpdto.UpdateTodoRequest{ID: uuid.NewString(), Title: "x"}, http.StatusBadRequest, "ID in URL and body do not match."},
		{"update missing", http.MethodPut, "/api/v1/todos/" + missing, httpdto.UpdateTodoRequest{Title: "x"}, http.StatusNotFound, ""},
		{"delete missing", http.MethodDelete, "/api/v1/todos/" + missing, nil, http.StatusNotFound, ""},
		{"bad sort", http.MethodGet, "/api/v1/todos?sort=priority", nil, http.StatusBadRequest, ""},
		{"malformed id", http.MethodGet, "/api/v1/todos/42", nil, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp httpdto.Response[any]
			decodeInto(t, w, &resp)
			if resp.Success {
				t.Error("error response reported success")
			}
			if tt.wantError != "" && resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestTodoHandler_ValidationFields(t *testing.T) {
	api := setupAPI(t)
	w := api.do(t, http.MethodPost, "/api/v1/todos", httpdto.CreateTodoRequest{})
	var resp httpdto.Response[any]
	decodeInto(t, w, &resp)
	if msgs := resp.Errors["title"]; len(msgs) != 1 || msgs[0] != "Title is required." {
		t.Errorf("errors = %v", resp.Errors)
	}
}

func TestAuthHandler(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	var me httpdto.Response[httpdto.UserResponse]
	decodeInto(t, w, &me)
	if w.Code != http.StatusOK || me.Data.Email != "tester@example.com" {
		t.Errorf("me = %d %+v", w.Code, me.Data)
	}

	if w := api.do(t, http.MethodGet, "/api/v1/auth/users/tester@example.com", nil); w.Code != http.StatusOK {
		t.Errorf("own user lookup status = %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/v1/auth/register", httpdto.RegisterRequest{
		Email: "other@example.com", Password: "Secret1!", DisplayName: "Other",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("second register status = %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/v1/auth/users/other@example.com", nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign user lookup status = %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/v1/auth/register", httpdto.RegisterRequest{
		Email: "tester@example.com", Password: "Secret1!", DisplayName: "Again",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/v1/auth/login", httpdto.LoginRequest{Email: "tester@example.com", Password: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", w.Code)
	}

	api.token = "garbage"
	if w := api.do(t, http.MethodGet, "/api/v1/todos", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", w.Code)
	}
}

func TestExternalTodoHandler(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/external-todos", httpdto.ExternalTodoRequest{UserID: 1, Title: "from api"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/external-todos/201" {
		t.Errorf("Location = %q", loc)
	}

	if w := api.do(t, http.MethodGet, "/api/v1/external-todos/1", nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/v1/external-todos/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/v1/external-todos/abc", nil); w.Code != http.StatusNotFound {
		t.Errorf("get non-numeric status = %d", w.Code)
	}
}
