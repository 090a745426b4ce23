package apphost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"todo-system/pkg/logger"

	"github.com/go-chi/chi/v5"
)

func TestErrorViewTemplate(t *testing.T) {
	var sb strings.Builder
	err := templates.ExecuteTemplate(&sb, "error", ErrorView{
		Message:  "connection refused <db>",
		ResetURL: ResetURL("api"),
		Method:   http.MethodPost,
	})
	if err != nil {
		t.Fatalf("ExecuteTemplate() error = %v", err)
	}
	html := sb.String()

	for _, want := range []string{
		"Something went wrong!",
		"connection refused &lt;db&gt;",
		`action="/resources/api/reset"`,
		"Try again",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("error view missing %q:\n%s", want, html)
		}
	}
}

func TestDashboard_ShowsFailureAndResets(t *testing.T) {
	runner := newFakeRunner()
	app := buildTodoHost(t, runner)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	runner.handle("api").exit(errors.New("exit status 1"))
	waitForState(t, app, "api", StateFailed)

	h := NewDashboard(app, logger.NewNop()).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"postgres", "Something went wrong!", "exit status 1", `action="/resources/api/reset"`, "Try again"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, ResetURL("api"), nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("reset = %d %q", w.Code, w.Header().Get("Location"))
	}
	waitForState(t, app, "api", StateRunning)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(w.Body.String(), "Something went wrong!") {
		t.Error("error view still shown after reset")
	}
}

func TestDashboard_ResetUnknownResource(t *testing.T) {
	app := buildTodoHost(t, newFakeRunner())
	h := NewDashboard(app, logger.NewNop()).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, ResetURL("redis"), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown resource: redis") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDashboard_ResourcesJSON(t *testing.T) {
	app := buildTodoHost(t, newFakeRunner())
	h := NewDashboard(app, logger.NewNop()).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/resources", nil))

	var got []ResourceStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Name != "postgres" || got[1].State != StatePending {
		t.Errorf("resources = %+v", got)
	}
	if !strings.Contains(w.Body.String(), `"references":["postgres"]`) {
		t.Errorf("api references missing: %s", w.Body.String())
	}
}

func TestDashboard_ErrorBoundaryRecoversPanics(t *testing.T) {
	d := NewDashboard(buildTodoHost(t, newFakeRunner()), logger.NewNop())
	r := chi.NewRouter()
	r.Use(d.errorBoundary)
	r.Get("/explode", func(http.ResponseWriter, *http.Request) { panic("template data missing") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Something went wrong!", "template data missing", "Try again"} {
		if !strings.Contains(body, want) {
			t.Errorf("boundary page missing %q", want)
		}
	}
}

func TestDashboard_Heartbeat(t *testing.T) {
	h := NewDashboard(buildTodoHost(t, newFakeRunner()), logger.NewNop()).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /ping status = %d", w.Code)
	}
}
