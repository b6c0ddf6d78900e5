package shell

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Context is the mutable execution state of a running script or
// session: its variable bindings, working directory, environment
// overlay and output streams. Nothing here touches process-global
// state, so forked contexts running concurrently never interfere.
//
// Context implements the variable-store interface the VM and the
// interpreter both consume.
type Context struct {
	mu       sync.RWMutex
	bindings map[string]string
	dir      string
	env      map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

// NewContext creates a context writing to the given streams. The
// working directory starts at the process working directory.
func NewContext(stdout, stderr io.Writer) *Context {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	dir, err := os.Getwd()
	if err != nil {
		dir = string(os.PathSeparator)
	}
	return &Context{
		bindings: make(map[string]string),
		dir:      dir,
		env:      make(map[string]string),
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Lookup returns a shell variable binding.
func (c *Context) Lookup(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.bindings[name]
	return v, ok
}

// Set binds a shell variable.
func (c *Context) Set(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[name] = value
}

// Dir returns the context's working directory.
func (c *Context) Dir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// Resolve makes path absolute against the context's working
// directory.
func (c *Context) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Chdir moves the context's working directory. The target must be an
// existing directory.
func (c *Context) Chdir(path string) error {
	abs := c.Resolve(path)
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", abs)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = filepath.Clean(abs)
	return nil
}

// Getenv reads an environment variable, overlay first, then the
// process environment. Unset names return "".
func (c *Context) Getenv(name string) string {
	c.mu.RLock()
	v, ok := c.env[name]
	c.mu.RUnlock()
	if ok {
		return v
	}
	return os.Getenv(name)
}

// Setenv writes an environment variable into the context's overlay.
// The process environment is never modified.
func (c *Context) Setenv(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env[name] = value
}

// Environ returns the effective environment as NAME=VALUE pairs, the
// process environment with the overlay applied on top.
func (c *Context) Environ() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range c.env {
		merged[k] = v
	}
	pairs := make([]string, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, k+"="+v)
	}
	return pairs
}

// Fork returns a child context with copies of the current bindings,
// working directory and environment overlay. Mutations in the child
// are invisible to the parent; cluster members run against forks so
// concurrent writes never race and a member's cd or set never leaks.
func (c *Context) Fork(stdout, stderr io.Writer) *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	child := &Context{
		bindings: make(map[string]string, len(c.bindings)),
		dir:      c.dir,
		env:      make(map[string]string, len(c.env)),
		Stdout:   stdout,
		Stderr:   stderr,
	}
	for k, v := range c.bindings {
		child.bindings[k] = v
	}
	for k, v := range c.env {
		child.env[k] = v
	}
	return child
}

// Names returns the bound variable names, unordered.
func (c *Context) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bindings))
	for k := range c.bindings {
		names = append(names, k)
	}
	return names
}
