// Package environment builds validated, environment-scoped views over a flat
// list of property declarations.
package environment

import (
	"errors"
	"fmt"
	"strings"

	"propactive/internal/property"
)

var (
	ErrNoEnvironmentsDeclared  = errors.New("no environments declared")
	ErrDuplicateProperty       = errors.New("duplicate property")
	ErrMissingRequiredProperty = errors.New("missing required property")
	ErrInvalidPropertyType     = property.ErrInvalidType
	ErrInvalidKey              = errors.New("invalid property key")
	ErrInvalidEnvironment      = errors.New("invalid environment name")
)

// PropertyError locates a validation failure to one key of one environment.
type PropertyError struct {
	Environment string
	Key         string
	Source      string
	Err         error
}

func (e *PropertyError) Error() string {
	msg := fmt.Sprintf("environment %q: property %q: %v", e.Environment, e.Key, e.Err)
	if e.Source != "" {
		msg += " (declared at " + e.Source + ")"
	}
	return msg
}

func (e *PropertyError) Unwrap() error { return e.Err }

// Environment is a named deployment target and its properties, in discovery
// order, with keys unique.
type Environment struct {
	Name       string
	Properties []property.Declaration
}

// Set is the result of Build: every declared environment, in order of first
// appearance.
type Set struct {
	envs []Environment
}

// All returns every environment in emission order.
func (s *Set) All() []Environment {
	return append([]Environment(nil), s.envs...)
}

// Names returns the environment names in emission order.
func (s *Set) Names() []string {
	names := make([]string, len(s.envs))
	for i, e := range s.envs {
		names[i] = e.Name
	}
	return names
}

// Get returns the environment called name.
func (s *Set) Get(name string) (Environment, bool) {
	for _, e := range s.envs {
		if e.Name == name {
			return e, true
		}
	}
	return Environment{}, false
}

// Len returns the number of environments.
func (s *Set) Len() int { return len(s.envs) }

// Select returns a Set holding only the environments for which keep returns
// true, order preserved.
func (s *Set) Select(keep func(name string) bool) *Set {
	out := &Set{}
	for _, e := range s.envs {
		if keep(e.Name) {
			out.envs = append(out.envs, e)
		}
	}
	return out
}

// Build fans each declaration out into every environment it names and
// validates the result. The first violation found fails the whole build, so
// no environment is returned when any one of them is broken.
func Build(decls []property.Declaration) (*Set, error) {
	var (
		order  []string
		byName = make(map[string][]property.Declaration)
	)
	for _, d := range decls {
		if len(d.Environments) == 0 {
			return nil, &PropertyError{Key: d.Key, Source: d.Source, Err: ErrInvalidEnvironment}
		}
		seen := make(map[string]bool, len(d.Environments))
		for _, name := range d.Environments {
			if !validName(name) {
				return nil, &PropertyError{Environment: name, Key: d.Key, Source: d.Source, Err: ErrInvalidEnvironment}
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := byName[name]; !ok {
				order = append(order, name)
			}
			scoped := d
			scoped.Environments = []string{name}
			byName[name] = append(byName[name], scoped)
		}
	}
	if len(order) == 0 {
		return nil, ErrNoEnvironmentsDeclared
	}

	set := &Set{envs: make([]Environment, 0, len(order))}
	for _, name := range order {
		props := byName[name]
		if err := validate(name, props); err != nil {
			return nil, err
		}
		set.envs = append(set.envs, Environment{Name: name, Properties: props})
	}
	return set, nil
}

// validName reports whether name can become part of a filename inside the
// destination directory.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func validate(env string, props []property.Declaration) error {
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		fail := func(err error) error {
			return &PropertyError{Environment: env, Key: p.Key, Source: p.Source, Err: err}
		}
		if !property.ValidKey(p.Key) {
			return fail(ErrInvalidKey)
		}
		if seen[p.Key] {
			return fail(ErrDuplicateProperty)
		}
		seen[p.Key] = true

		if p.Value == "" {
			if p.Required {
				return fail(ErrMissingRequiredProperty)
			}
			continue
		}
		if err := p.Type.Check(p.Value, p.Choices); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrInvalidPropertyType, err))
		}
	}
	return nil
}
