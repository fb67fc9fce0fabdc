// Package jobs holds the job-type registry. Job types are declared by manifest files
// under the configured jobs path and bound to handlers compiled into the binaries.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/job-boss/internal/domain"
)

// Handler runs one method of a job type
type Handler interface {
	Run(ctx context.Context, method string, args json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, method string, args json.RawMessage) (any, error)

// Run calls f
func (f HandlerFunc) Run(ctx context.Context, method string, args json.RawMessage) (any, error) {
	return f(ctx, method, args)
}

// Constructor builds a handler for a job type from its manifest
type Constructor func(m Manifest) (Handler, error)

var (
	builtinsMu sync.RWMutex
	builtins   = map[string]Constructor{}
)

// RegisterBuiltin makes a compiled-in handler available to manifests of kind builtin.
// It panics on duplicates, like database/sql.Register.
func RegisterBuiltin(name string, ctor Constructor) {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()

	if ctor == nil {
		panic("jobs: RegisterBuiltin constructor is nil")
	}
	if _, dup := builtins[name]; dup {
		panic("jobs: RegisterBuiltin called twice for " + name)
	}
	builtins[name] = ctor
}

func lookupBuiltin(name string) (Constructor, bool) {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	ctor, ok := builtins[name]
	return ctor, ok
}

// Type is a registered job type
type Type struct {
	Manifest Manifest
	ctor     Constructor
}

// Name returns the job type identifier
func (t *Type) Name() string {
	return t.Manifest.Name
}

// Supports reports whether the method may be dispatched. A manifest without a methods
// list accepts any method.
func (t *Type) Supports(method string) bool {
	if len(t.Manifest.Methods) == 0 {
		return true
	}
	for _, m := range t.Manifest.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// NewHandler constructs the handler that executes this type's jobs
func (t *Type) NewHandler() (Handler, error) {
	return t.ctor(t.Manifest)
}

// Registry maps job type identifiers to their types.
// It is filled once at startup and read-only afterwards.
type Registry struct {
	types map[string]*Type
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{types: map[string]*Type{}}
}

// Register validates a manifest, binds it to its handler constructor and adds it
func (r *Registry) Register(m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if _, dup := r.types[m.Name]; dup {
		return fmt.Errorf("job type %q registered twice", m.Name)
	}

	var ctor Constructor
	switch m.Kind {
	case KindBuiltin:
		var ok bool
		ctor, ok = lookupBuiltin(m.Handler)
		if !ok {
			return fmt.Errorf("job type %q: no builtin handler named %q", m.Name, m.Handler)
		}
	case KindCommand:
		ctor = newCommandHandler
	}

	r.types[m.Name] = &Type{Manifest: m, ctor: ctor}
	return nil
}

// Lookup returns the job type with the given name
func (r *Registry) Lookup(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, name)
	}
	return t, nil
}

// Resolve returns the handler-ready type for a job, checking its method as well
func (r *Registry) Resolve(jobType, method string) (*Type, error) {
	t, err := r.Lookup(jobType)
	if err != nil {
		return nil, err
	}
	if !t.Supports(method) {
		return nil, fmt.Errorf("%w: %s#%s", domain.ErrUnknownMethod, jobType, method)
	}
	return t, nil
}

// Names returns the registered job type names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types
func (r *Registry) Len() int {
	return len(r.types)
}
