package apphost

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"todo-system/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ErrorView is what the error boundary renders: the message and a form
// submitting to ResetURL with Method.
type ErrorView struct {
	Message  string
	ResetURL string
	Method   string
}

type failure struct {
	Name string
	View ErrorView
}

type dashboardPage struct {
	Resources []ResourceStatus
	Failures  []failure
}

// Dashboard serves the resource overview of an App.
type Dashboard struct {
	app    *App
	logger *logger.Logger
}

func NewDashboard(app *App, l *logger.Logger) *Dashboard {
	return &Dashboard{app: app, logger: l}
}

func (d *Dashboard) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(d.errorBoundary)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/", d.index)
	r.Get("/api/resources", d.resources)
	r.Post("/resources/{name}/reset", d.reset)
	return r
}

// ResetURL is the action that restarts name.
func ResetURL(name string) string {
	return "/resources/" + url.PathEscape(name) + "/reset"
}

func (d *Dashboard) index(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{Resources: d.app.Status()}
	for _, res := range page.Resources {
		if res.State != StateFailed {
			continue
		}
		page.Failures = append(page.Failures, failure{
			Name: res.Name,
			View: ErrorView{Message: res.Error, ResetURL: ResetURL(res.Name), Method: http.MethodPost},
		})
	}
	d.render(w, r, http.StatusOK, "dashboard", page)
}

func (d *Dashboard) resources(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, d.app.Status())
}

func (d *Dashboard) reset(w http.ResponseWriter, r *http.Request) {
	if err := d.app.RestartAsync(chi.URLParam(r, "name")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownResource) {
			status = http.StatusNotFound
		}
		d.render(w, r, status, "error-page", ErrorView{Message: err.Error(), ResetURL: "/", Method: http.MethodGet})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// render executes into a buffer first so a template failure still yields
// a complete error page.
func (d *Dashboard) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		panic(fmt.Sprintf("render %s: %v", name, err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		d.logger.Warn(r.Context(), "dashboard write failed", zap.Error(err))
	}
}

// errorBoundary turns a panicking dashboard handler into the error view
// instead of a dropped connection.
func (d *Dashboard) errorBoundary(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			d.logger.Error(r.Context(), "dashboard panic",
				zap.Any("panic", rec),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			var buf bytes.Buffer
			view := ErrorView{Message: fmt.Sprint(rec), ResetURL: "/", Method: http.MethodGet}
			if err := templates.ExecuteTemplate(&buf, "error-page", view); err != nil {
				http.Error(w, view.Message, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = buf.WriteTo(w)
		}()
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
