// Package declaration abstracts "one declaration object, many property
// entries". A Descriptor is anything that can list its entries: a source
// package inspected at build time, a static list, or a function registered
// by hand.
package declaration

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"propactive/internal/property"
)

var (
	// ErrDeclarationNotFound means no declaration object matched an identifier.
	ErrDeclarationNotFound = errors.New("declaration not found")
	// ErrAmbiguousDeclaration means more than one declaration object matched.
	ErrAmbiguousDeclaration = errors.New("ambiguous declaration")
)

// LookupError carries the identifier that failed to resolve and, for
// ambiguous lookups, every candidate that matched.
type LookupError struct {
	Identifier string
	Candidates []string
	Err        error
}

func (e *LookupError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("%v: %q matches %s", e.Err, e.Identifier, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Identifier)
}

func (e *LookupError) Unwrap() error { return e.Err }

// NotFound returns a LookupError wrapping ErrDeclarationNotFound.
func NotFound(identifier string) *LookupError {
	return &LookupError{Identifier: identifier, Err: ErrDeclarationNotFound}
}

// Ambiguous returns a LookupError wrapping ErrAmbiguousDeclaration.
func Ambiguous(identifier string, candidates []string) *LookupError {
	return &LookupError{Identifier: identifier, Candidates: candidates, Err: ErrAmbiguousDeclaration}
}

// Descriptor lists the property entries of one declaration object, in
// declaration order.
type Descriptor interface {
	Entries() ([]property.Declaration, error)
}

// Entries is a Descriptor over a fixed list.
type Entries []property.Declaration

func (e Entries) Entries() ([]property.Declaration, error) {
	return append([]property.Declaration(nil), e...), nil
}

// DescriptorFunc adapts a function to a Descriptor.
type DescriptorFunc func() ([]property.Declaration, error)

func (f DescriptorFunc) Entries() ([]property.Declaration, error) { return f() }

// Registry maps identifiers to descriptors registered explicitly.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds d under id. Registering the same id twice is an error.
func (r *Registry) Register(id string, d Descriptor) error {
	if id == "" {
		return fmt.Errorf("declaration: empty identifier")
	}
	if d == nil {
		return fmt.Errorf("declaration: nil descriptor for %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[id]; ok {
		return fmt.Errorf("declaration: %q already registered", id)
	}
	r.descriptors[id] = d
	return nil
}

// Lookup resolves id. An exact match wins. Otherwise a bare name matches the
// last dot segment of every registered id, and "path.Name" matches every id
// named Name whose package path is path or ends in "/path".
func (r *Registry) Lookup(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.descriptors[id]; ok {
		return d, nil
	}
	pkgPath, name := Split(id)
	var matches []string
	for k := range r.descriptors {
		kp, kn := Split(k)
		if kn != name {
			continue
		}
		if pkgPath == "" || kp == pkgPath || strings.HasSuffix(kp, "/"+pkgPath) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return nil, NotFound(id)
	case 1:
		return r.descriptors[matches[0]], nil
	}
	sort.Strings(matches)
	return nil, Ambiguous(id, matches)
}

// Identifiers returns every registered id, sorted.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Split breaks "example.com/app/config.ApplicationProperties" into its
// package path and name. A bare name has an empty package path.
func Split(id string) (pkgPath, name string) {
	slash := strings.LastIndex(id, "/")
	dot := strings.LastIndex(id, ".")
	if dot <= slash {
		return "", id
	}
	return id[:dot], id[dot+1:]
}

// Name returns the name part of id.
func Name(id string) string {
	_, name := Split(id)
	return name
}
