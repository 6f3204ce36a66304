// Package env composes the extra environment handed to the server process.
package env

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env collects variables from env files and explicit KEY=VALUE entries.
// Later sources override earlier ones.
type Env struct {
	Var    Var
	lookup func(string) (string, bool) // fallback for ${VAR} references
}

func New() *Env {
	return &Env{Var: make(Var), lookup: os.LookupEnv}
}

// Set sets a variable K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// WithSet returns a copy of e with K=V applied.
func (e *Env) WithSet(k, v string) *Env {
	c := &Env{Var: make(Var, len(e.Var)+1), lookup: e.lookup}
	for kk, vv := range e.Var {
		c.Var[kk] = vv
	}
	c.Set(k, v)
	return c
}

// Apply sets every "K=V" entry. Entries without '=' or with an empty key are skipped.
func (e *Env) Apply(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(strings.TrimSpace(k), v)
		}
	}
}

// LoadFile applies a simple .env file: KEY=VALUE lines, '#' comments, an
// optional "export " prefix and optional surrounding quotes on the value.
func (e *Env) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("env file %s:%d: missing '='", path, n)
		}
		e.Set(strings.TrimSpace(k), unquote(strings.TrimSpace(v)))
	}
	return sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// List returns the variables as sorted "K=V" entries with ${VAR} references
// expanded, first against the collected variables and then against the
// inherited environment. Unknown references expand to "". Expansion is one
// level deep.
func (e *Env) List() []string {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make([]string, 0, len(e.Var))
	for k, v := range e.Var {
		out = append(out, k+"="+expand(v, e.Var, lookup))
	}
	slices.Sort(out)
	return out
}

func expand(s string, m Var, lookup func(string) (string, bool)) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		name := s[i+2 : i+2+j]
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else if v, ok := lookup(name); ok {
			b.WriteString(v)
		}
		s = s[i+3+j:]
	}
}

// Resolve loads files in order, applies pairs on top and returns the result
// of List.
func Resolve(files []string, pairs []string) ([]string, error) {
	e := New()
	for _, p := range files {
		if err := e.LoadFile(p); err != nil {
			return nil, err
		}
	}
	e.Apply(pairs)
	return e.List(), nil
}
