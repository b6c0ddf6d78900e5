package shell

import (
	"sort"
	"strings"
	"sync"
)

// aliasMaxDepth bounds recursive alias expansion.
const aliasMaxDepth = 5

// AliasTable holds session-scoped command aliases. Aliases expand by
// first token before parsing, so an alias can stand in for any
// command line prefix.
type AliasTable struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewAliasTable creates an empty alias table.
func NewAliasTable() *AliasTable {
	return &AliasTable{entries: make(map[string]string)}
}

// Define binds name to its expansion.
func (t *AliasTable) Define(name, expansion string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = expansion
}

// Remove deletes an alias. Removing an unknown name is a no-op.
func (t *AliasTable) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
}

// Lookup returns an alias expansion.
func (t *AliasTable) Lookup(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[name]
	return v, ok
}

// List returns "name -> expansion" lines sorted by name.
func (t *AliasTable) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for k := range t.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + " -> " + t.entries[name]
	}
	return lines
}

// ExpandLine rewrites the line if its first token is an alias,
// repeating until no alias matches or the depth bound is hit.
func (t *AliasTable) ExpandLine(line string) string {
	for depth := 0; depth < aliasMaxDepth; depth++ {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			return line
		}
		first := trimmed
		rest := ""
		if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
			first = trimmed[:i]
			rest = strings.TrimLeft(trimmed[i:], " \t")
		}
		expansion, ok := t.Lookup(first)
		if !ok {
			return line
		}
		if rest != "" {
			line = expansion + " " + rest
		} else {
			line = expansion
		}
	}
	return line
}
