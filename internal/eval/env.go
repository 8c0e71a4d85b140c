package eval

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// Env holds environment overrides on top of the process environment.
// Lookups fall back to os.LookupEnv; children receive the merged view.
type Env struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewEnv constructs an environment seeded with overrides, which may be nil.
func NewEnv(overrides map[string]string) *Env {
	e := &Env{vars: make(map[string]string, len(overrides))}
	for k, v := range overrides {
		e.vars[k] = v
	}
	return e
}

// Get returns the value for name, consulting the process environment when
// no override is set.
func (e *Env) Get(name string) string {
	if e != nil {
		e.mu.RLock()
		v, ok := e.vars[name]
		e.mu.RUnlock()
		if ok {
			return v
		}
	}
	return os.Getenv(name)
}

// Set overrides name for the shell and every child started afterwards.
func (e *Env) Set(name, value string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[name] = value
}

// Environ returns the merged environment in KEY=value form, sorted by key.
func (e *Env) Environ() []string {
	base := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		base[k] = v
	}
	if e != nil {
		e.mu.RLock()
		for k, v := range e.vars {
			base[k] = v
		}
		e.mu.RUnlock()
	}
	out := make([]string, 0, len(base))
	for k, v := range base {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
