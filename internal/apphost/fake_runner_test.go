package apphost

import (
	"context"
	"errors"
	"sync"
)

type fakeHandle struct {
	name   string
	runner *fakeRunner
	exited chan struct{}
	once   sync.Once
	err    error
}

func (h *fakeHandle) Exited() <-chan struct{} { return h.exited }
func (h *fakeHandle) Err() error              { return h.err }

func (h *fakeHandle) Stop(ctx context.Context) error {
	h.runner.record("stop " + h.name)
	h.exit(nil)
	return nil
}

// exit simulates the process ending on its own.
func (h *fakeHandle) exit(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.exited)
	})
}

type fakeRunner struct {
	mu      sync.Mutex
	events  []string
	envs    map[string]map[string]string
	handles map[string]*fakeHandle
	failing map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		envs:    map[string]map[string]string{},
		handles: map[string]*fakeHandle{},
		failing: map[string]error{},
	}
}

func (f *fakeRunner) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRunner) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeRunner) failNext(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[name] = err
}

func (f *fakeRunner) handle(name string) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[name]
}

func (f *fakeRunner) env(name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.envs[name]
}

func (f *fakeRunner) Start(ctx context.Context, r Resource) (Handle, error) {
	f.record("start " + r.Name)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[r.Name]; ok {
		delete(f.failing, r.Name)
		return nil, err
	}
	f.envs[r.Name] = r.Env
	h := &fakeHandle{name: r.Name, runner: f, exited: make(chan struct{})}
	f.handles[r.Name] = h
	return h, nil
}

var errBoom = errors.New("boom")
