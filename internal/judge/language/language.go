// Package language holds immutable language descriptors and the command
// template machinery used to build compile and run command lines.
package language

import (
	"fmt"
	"strings"
	"sync"
)

// Language describes one programming language available to the judge.
// Instances are owned by configuration and read-only to the engine.
type Language struct {
	Key                  string
	Name                 string
	SourceExt            string
	CompileCommand       Template
	RunCommand           Template
	Interpreted          bool
	DefaultTimeLimitMs   int64
	DefaultMemoryLimitKB int64
}

// Compiled reports whether the language needs a compile step.
func (l Language) Compiled() bool {
	return !l.Interpreted && len(l.CompileCommand) > 0
}

// SourceFileName returns the canonical source file name for a submission.
func (l Language) SourceFileName(base string) string {
	ext := l.SourceExt
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + ext
}

// Registry is a read-only lookup table of languages keyed by language key.
type Registry struct {
	mu    sync.RWMutex
	langs map[string]Language
}

// NewRegistry creates a registry from the given languages.
func NewRegistry(langs []Language) *Registry {
	m := make(map[string]Language, len(langs))
	for _, l := range langs {
		m[strings.ToLower(l.Key)] = l
	}
	return &Registry{langs: m}
}

// Get returns the language for key.
func (r *Registry) Get(key string) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.langs[strings.ToLower(key)]
	if !ok {
		return Language{}, fmt.Errorf("language %q is not configured", key)
	}
	return l, nil
}

// Put adds or replaces a language. Used at startup when database language
// records override the static configuration.
func (r *Registry) Put(l Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[strings.ToLower(l.Key)] = l
}

// Keys returns the configured language keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.langs))
	for k := range r.langs {
		keys = append(keys, k)
	}
	return keys
}
