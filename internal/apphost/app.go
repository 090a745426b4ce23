package apphost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

var ErrUnknownResource = errors.New("unknown resource")

const (
	readyTimeout  = 60 * time.Second
	readyInterval = 500 * time.Millisecond
	stopTimeout   = 10 * time.Second
)

// ReadyProbe reports when a started resource accepts work.
type ReadyProbe func(ctx context.Context, r Resource, h Handle) error

// ResourceStatus is the dashboard view of one resource.
type ResourceStatus struct {
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	Image      string    `json:"image,omitempty"`
	Ports      []string  `json:"ports,omitempty"`
	References []string  `json:"references,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
}

type entry struct {
	res       Resource
	state     State
	err       error
	handle    Handle
	gen       int
	startedAt time.Time
}

// App owns the declared resources and their lifecycle.
type App struct {
	runner        Runner
	probe         ReadyProbe
	baseCtx       context.Context
	dashboardAddr string
	logger        *logger.Logger

	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

func newApp(resources []Resource, runner Runner, dashboardAddr string, l *logger.Logger) *App {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	a := &App{
		runner:        runner,
		probe:         TCPReadyProbe,
		baseCtx:       context.Background(),
		dashboardAddr: dashboardAddr,
		logger:        l,
		entries:       make(map[string]*entry, len(resources)),
	}
	for _, r := range resources {
		a.order = append(a.order, r.Name)
		a.entries[r.Name] = &entry{res: r, state: StatePending}
	}
	return a
}

// SetReadyProbe replaces TCPReadyProbe.
func (a *App) SetReadyProbe(p ReadyProbe) {
	a.probe = p
}

// Run starts every resource and the dashboard, blocks until ctx is done and
// then stops everything in reverse order.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	var dashboard *http.Server
	if a.dashboardAddr != "" {
		dashboard = &http.Server{
			Addr:              a.dashboardAddr,
			Handler:           NewDashboard(a, a.logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Infof("Dashboard listening on %s", a.dashboardAddr)
			if err := dashboard.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Errorf("Dashboard stopped: %v", err)
			}
		}()
	}

	if err := a.Start(ctx); err != nil {
		a.logger.Warnf("Some resources failed to start: %v", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := a.Stop(stopCtx)
	if dashboard != nil {
		_ = dashboard.Shutdown(stopCtx)
	}
	return err
}

// Start brings resources up in declaration order. A resource whose
// reference is not running is marked failed and skipped.
func (a *App) Start(ctx context.Context) error {
	var errs []error
	for _, name := range a.order {
		if err := a.startOne(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop takes resources down in reverse declaration order.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	for i := len(a.order) - 1; i >= 0; i-- {
		if err := a.stopOne(ctx, a.order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restart stops the resource if needed and starts it again.
func (a *App) Restart(ctx context.Context, name string) error {
	if _, ok := a.lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := a.stopOne(stopCtx, name); err != nil {
		return err
	}
	return a.startOne(ctx, name)
}

// RestartAsync restarts name in the background under the Run context.
func (a *App) RestartAsync(name string) error {
	if _, ok := a.lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	a.mu.RLock()
	ctx := a.baseCtx
	a.mu.RUnlock()

	go func() {
		if err := a.Restart(ctx, name); err != nil {
			a.logger.Warnf("Restart of %s failed: %v", name, err)
		}
	}()
	return nil
}

func (a *App) Status() []ResourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ResourceStatus, 0, len(a.order))
	for _, name := range a.order {
		e := a.entries[name]
		st := ResourceStatus{
			Name:       e.res.Name,
			Kind:       e.res.Kind,
			State:      e.state,
			Image:      e.res.Image,
			References: append([]string(nil), e.res.References...),
			StartedAt:  e.startedAt,
		}
		if e.err != nil {
			st.Error = e.err.Error()
		}
		for _, p := range e.res.Ports {
			st.Ports = append(st.Ports, p.String())
		}
		out = append(out, st)
	}
	return out
}

func (a *App) lookup(name string) (*entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[name]
	return e, ok
}

func (a *App) startOne(ctx context.Context, name string) error {
	a.mu.Lock()
	e := a.entries[name]
	res := e.res
	res.Env = make(map[string]string, len(e.res.Env))
	for _, ref := range e.res.References {
		dep := a.entries[ref]
		if dep.state != StateRunning {
			err := fmt.Errorf("dependency %q is not running", ref)
			a.setFailedLocked(e, err)
			a.mu.Unlock()
			return fmt.Errorf("%s: %w", name, err)
		}
		for k, v := range dep.res.connectionEnv() {
			res.Env[k] = v
		}
	}
	for k, v := range e.res.Env {
		res.Env[k] = v
	}
	e.state = StateStarting
	e.err = nil
	e.gen++
	gen := e.gen
	a.mu.Unlock()

	a.logger.Info(ctx, "starting resource", zap.String("resource", name), zap.String("kind", string(res.Kind)))

	h, err := a.runner.Start(ctx, res)
	if err != nil {
		a.fail(name, gen, err)
		return fmt.Errorf("%s: %w", name, err)
	}

	a.mu.Lock()
	e.handle = h
	a.mu.Unlock()
	go a.watch(name, gen, h)

	if a.probe != nil {
		if err := a.probe(ctx, res, h); err != nil {
			a.mu.Lock()
			e.gen++
			gen = e.gen
			e.handle = nil
			a.mu.Unlock()

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			_ = h.Stop(stopCtx)
			cancel()
			a.fail(name, gen, err)
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e.gen != gen || e.state != StateStarting {
		if e.err != nil {
			return fmt.Errorf("%s: %w", name, e.err)
		}
		return fmt.Errorf("%s: stopped while starting", name)
	}
	e.state = StateRunning
	e.startedAt = time.Now()
	a.logger.Info(ctx, "resource running", zap.String("resource", name))
	return nil
}

func (a *App) stopOne(ctx context.Context, name string) error {
	a.mu.Lock()
	e := a.entries[name]
	h := e.handle
	e.handle = nil
	e.gen++
	if e.state == StateRunning || e.state == StateStarting {
		e.state = StateStopped
	}
	a.mu.Unlock()

	if h == nil {
		return nil
	}
	a.logger.Info(ctx, "stopping resource", zap.String("resource", name))
	return h.Stop(ctx)
}

// watch marks the resource failed when it exits without being stopped.
func (a *App) watch(name string, gen int, h Handle) {
	<-h.Exited()
	err := h.Err()
	if err == nil {
		err = errors.New("exited unexpectedly")
	}
	a.fail(name, gen, err)
}

func (a *App) fail(name string, gen int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entries[name]
	if e.gen != gen {
		return
	}
	a.setFailedLocked(e, err)
}

func (a *App) setFailedLocked(e *entry, err error) {
	e.state = StateFailed
	e.err = err
	e.handle = nil
	a.logger.Error(context.Background(), "resource failed", zap.String("resource", e.res.Name), zap.Error(err))
}

// TCPReadyProbe waits until the first published port accepts connections.
// Resources without ports are ready once started.
func TCPReadyProbe(ctx context.Context, r Resource, h Handle) error {
	if len(r.Ports) == 0 {
		return nil
	}
	addr := net.JoinHostPort("localhost", strconv.Itoa(r.Ports[0].HostPort))

	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	var d net.Dialer
	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-h.Exited():
			return fmt.Errorf("exited before %s accepted connections: %v", addr, h.Err())
		case <-ctx.Done():
			return fmt.Errorf("%s not reachable: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}
