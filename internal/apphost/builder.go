package apphost

import (
	"errors"
	"fmt"

	"todo-system/pkg/logger"
)

// Builder declares the resources of a distributed application.
type Builder struct {
	resources     []*Resource
	byName        map[string]*Resource
	dashboardAddr string
	errs          []error
}

func NewBuilder() *Builder {
	return &Builder{byName: map[string]*Resource{}}
}

// ResourceBuilder configures one declared resource.
type ResourceBuilder struct {
	b *Builder
	r *Resource
}

func (b *Builder) add(r *Resource) *ResourceBuilder {
	if _, dup := b.byName[r.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("resource %q declared twice", r.Name))
	} else {
		b.byName[r.Name] = r
		b.resources = append(b.resources, r)
	}
	return &ResourceBuilder{b: b, r: r}
}

func (b *Builder) AddContainer(name, image string) *ResourceBuilder {
	return b.add(&Resource{Name: name, Kind: KindContainer, Image: image, Env: map[string]string{}})
}

// AddProject declares a local process started with command.
func (b *Builder) AddProject(name string, command ...string) *ResourceBuilder {
	return b.add(&Resource{Name: name, Kind: KindProject, Command: command, Env: map[string]string{}})
}

// AddDashboard serves the resource dashboard on addr.
func (b *Builder) AddDashboard(addr string) *Builder {
	b.dashboardAddr = addr
	return b
}

func (rb *ResourceBuilder) Name() string {
	return rb.r.Name
}

func (rb *ResourceBuilder) WithEnvironment(key, value string) *ResourceBuilder {
	rb.r.Env[key] = value
	return rb
}

func (rb *ResourceBuilder) WithPort(hostPort, containerPort int) *ResourceBuilder {
	rb.r.Ports = append(rb.r.Ports, PortMapping{HostPort: hostPort, ContainerPort: containerPort})
	return rb
}

func (rb *ResourceBuilder) WithWorkingDir(dir string) *ResourceBuilder {
	rb.r.Dir = dir
	return rb
}

// WithReference makes other a dependency of this resource.
func (rb *ResourceBuilder) WithReference(other *ResourceBuilder) *ResourceBuilder {
	if other == nil {
		rb.b.errs = append(rb.b.errs, fmt.Errorf("resource %q references nil", rb.r.Name))
		return rb
	}
	rb.r.References = append(rb.r.References, other.r.Name)
	return rb
}

// Build validates the declarations. References must point at resources
// declared earlier, which keeps start order equal to declaration order.
func (b *Builder) Build(runner Runner, l *logger.Logger) (*App, error) {
	errs := append([]error(nil), b.errs...)
	seen := map[string]bool{}
	for _, r := range b.resources {
		if err := r.validate(); err != nil {
			errs = append(errs, err)
		}
		for _, ref := range r.References {
			if !seen[ref] {
				errs = append(errs, fmt.Errorf("resource %q references %q which is not declared before it", r.Name, ref))
			}
		}
		seen[r.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	resources := make([]Resource, 0, len(b.resources))
	for _, r := range b.resources {
		resources = append(resources, *r)
	}
	return newApp(resources, runner, b.dashboardAddr, l), nil
}
