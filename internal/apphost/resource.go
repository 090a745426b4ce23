package apphost

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	KindContainer Kind = "container"
	KindProject   Kind = "project"
)

type State string

const (
	StatePending  State = "pending"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// PortMapping publishes ContainerPort on HostPort.
type PortMapping struct {
	HostPort      int
	ContainerPort int
}

func (p PortMapping) String() string {
	return strconv.Itoa(p.HostPort) + ":" + strconv.Itoa(p.ContainerPort)
}

// Resource is one unit the host starts: a container image or a local
// project command.
type Resource struct {
	Name    string
	Kind    Kind
	Image   string
	Command []string
	Dir     string
	Env     map[string]string
	Ports   []PortMapping
	// References name resources that must be running first. Their
	// connection settings are injected into Env at start.
	References []string
}

// ProcessName is the container name used on the docker host.
func (r Resource) ProcessName() string {
	return "todo-system-" + r.Name
}

// EnvList renders Env as sorted KEY=VALUE pairs.
func (r Resource) EnvList() []string {
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+r.Env[k])
	}
	return out
}

func (r Resource) isPostgres() bool {
	image := r.Image
	if i := strings.LastIndex(image, "/"); i >= 0 {
		image = image[i+1:]
	}
	return r.Kind == KindContainer && strings.HasPrefix(image, "postgres")
}

// connectionEnv is what a resource exposes to the resources referencing it.
func (r Resource) connectionEnv() map[string]string {
	env := map[string]string{}
	prefix := strings.ToUpper(strings.ReplaceAll(r.Name, "-", "_"))
	if len(r.Ports) > 0 {
		env[prefix+"_HOST"] = "localhost"
		env[prefix+"_PORT"] = strconv.Itoa(r.Ports[0].HostPort)
	}

	if r.isPostgres() {
		dbUser := r.Env["POSTGRES_USER"]
		if dbUser == "" {
			dbUser = "postgres"
		}
		dbName := r.Env["POSTGRES_DB"]
		if dbName == "" {
			dbName = dbUser
		}
		env["DB_HOST"] = "localhost"
		env["DB_USER"] = dbUser
		env["DB_PASSWORD"] = r.Env["POSTGRES_PASSWORD"]
		env["DB_NAME"] = dbName
		if len(r.Ports) > 0 {
			env["DB_PORT"] = strconv.Itoa(r.Ports[0].HostPort)
		}
	}
	return env
}

func (r Resource) validate() error {
	if r.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	switch r.Kind {
	case KindContainer:
		if r.Image == "" {
			return fmt.Errorf("container %q needs an image", r.Name)
		}
	case KindProject:
		if len(r.Command) == 0 {
			return fmt.Errorf("project %q needs a command", r.Name)
		}
	default:
		return fmt.Errorf("resource %q has unknown kind %q", r.Name, r.Kind)
	}
	for _, p := range r.Ports {
		if p.HostPort <= 0 || p.HostPort > 65535 || p.ContainerPort <= 0 || p.ContainerPort > 65535 {
			return fmt.Errorf("resource %q has invalid port mapping %s", r.Name, p)
		}
	}
	return nil
}
