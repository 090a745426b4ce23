package apphost

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// Handle controls one started resource.
type Handle interface {
	// Exited is closed once the resource is no longer running.
	Exited() <-chan struct{}
	// Err is the exit error, valid after Exited is closed.
	Err() error
	Stop(ctx context.Context) error
}

// Runner starts resources. ExecRunner is the production implementation.
type Runner interface {
	Start(ctx context.Context, r Resource) (Handle, error)
}

// ExecRunner runs containers through the docker CLI and projects as child
// processes. Output of every resource goes to Output.
type ExecRunner struct {
	Docker string
	Output io.Writer
	logger *logger.Logger
}

func NewExecRunner(l *logger.Logger) *ExecRunner {
	return &ExecRunner{Docker: "docker", Output: os.Stdout, logger: l}
}

func (e *ExecRunner) Start(ctx context.Context, r Resource) (Handle, error) {
	var cmd *exec.Cmd
	switch r.Kind {
	case KindContainer:
		// a container left behind by a crashed host would hold the name
		_ = exec.CommandContext(ctx, e.Docker, "rm", "-f", r.ProcessName()).Run()
		cmd = exec.Command(e.Docker, dockerRunArgs(r)...)
	case KindProject:
		cmd = exec.Command(r.Command[0], r.Command[1:]...)
		cmd.Env = append(os.Environ(), r.EnvList()...)
		cmd.Dir = r.Dir
	default:
		return nil, fmt.Errorf("cannot run resource kind %q", r.Kind)
	}

	out := prefixWriter(e.Output, r.Name)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Name, err)
	}
	e.logger.Info(ctx, "resource process started", zap.String("resource", r.Name), zap.Int("pid", cmd.Process.Pid))

	h := &processHandle{
		resource: r,
		cmd:      cmd,
		docker:   e.Docker,
		exited:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.exited)
	}()
	return h, nil
}

func dockerRunArgs(r Resource) []string {
	args := []string{"run", "--rm", "--name", r.ProcessName()}
	for _, kv := range r.EnvList() {
		args = append(args, "-e", kv)
	}
	for _, p := range r.Ports {
		args = append(args, "-p", p.String())
	}
	return append(args, r.Image)
}

type processHandle struct {
	resource Resource
	cmd      *exec.Cmd
	docker   string
	exited   chan struct{}

	mu  sync.Mutex
	err error
}

func (h *processHandle) Exited() <-chan struct{} {
	return h.exited
}

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop asks the resource to exit and kills its process group when ctx
// expires first.
func (h *processHandle) Stop(ctx context.Context) error {
	select {
	case <-h.exited:
		return nil
	default:
	}

	if h.resource.Kind == KindContainer {
		_ = exec.CommandContext(ctx, h.docker, "stop", h.resource.ProcessName()).Run()
	} else {
		_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGTERM)
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		<-h.exited
		return fmt.Errorf("stop %s: %w", h.resource.Name, ctx.Err())
	}
}

type linePrefixer struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix []byte
	atBOL  bool
}

var outputMu sync.Mutex

// prefixWriter tags every output line with the resource name.
func prefixWriter(w io.Writer, name string) io.Writer {
	if w == nil {
		return io.Discard
	}
	return &linePrefixer{mu: &outputMu, w: w, prefix: []byte("[" + name + "] "), atBOL: true}
}

func (p *linePrefixer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, 0, len(b)+len(p.prefix))
	for _, c := range b {
		if p.atBOL {
			buf = append(buf, p.prefix...)
			p.atBOL = false
		}
		buf = append(buf, c)
		if c == '\n' {
			p.atBOL = true
		}
	}
	if _, err := p.w.Write(buf); err != nil {
		return 0, err
	}
	return len(b), nil
}
