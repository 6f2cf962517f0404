// Package inspect implements the declaration inspector: it loads Go packages
// from source and turns the tagged fields of one named struct type into
// property declarations.
//
// A declaration object looks like:
//
//	type ApplicationProperties struct {
//		Timeout int    `property:"service.timeout" environments:"test,prod" value:"30" required:"true"`
//		Host    string `property:"service.host" values:"test=localhost;stage,prod=svc.internal"`
//	}
//
// Fields without a property tag are ignored.
package inspect

import (
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"

	"propactive/internal/declaration"
	"propactive/internal/property"
)

// Struct tag names read from declaration fields.
const (
	TagProperty     = "property"
	TagEnvironments = "environments"
	TagValue        = "value"
	TagValues       = "values"
	TagType         = "type"
	TagChoices      = "choices"
	TagRequired     = "required"
)

// DefaultPattern is the package pattern loaded when none is given.
const DefaultPattern = "./..."

// ErrMalformedField means a declaration field carries tags that cannot be
// turned into property declarations.
var ErrMalformedField = errors.New("malformed declaration field")

// FieldError reports a problem with one field of a declaration object.
type FieldError struct {
	Declaration string
	Field       string
	Source      string
	Err         error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("inspect: %s.%s (%s): %v", e.Declaration, e.Field, e.Source, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Artifacts is a loaded, type-checked set of Go packages.
type Artifacts struct {
	Dir      string
	Fset     *token.FileSet
	Packages []*packages.Package
}

// Load type-checks the packages matching patterns, resolved relative to dir.
func Load(dir string, patterns ...string) (*Artifacts, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inspect: resolve %s: %w", dir, err)
	}
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedSyntax |
			packages.NeedTypes |
			packages.NeedTypesInfo,
		Dir:  abs,
		Fset: fset,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("inspect: load %s: %w", strings.Join(patterns, " "), err)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].PkgPath < pkgs[j].PkgPath })
	return &Artifacts{Dir: abs, Fset: fset, Packages: pkgs}, nil
}

// Descriptor returns a declaration.Descriptor that loads dir lazily and
// inspects identifier on every call to Entries.
func Descriptor(dir string, patterns []string, identifier string) declaration.Descriptor {
	return declaration.DescriptorFunc(func() ([]property.Declaration, error) {
		a, err := Load(dir, patterns...)
		if err != nil {
			return nil, err
		}
		return Inspect(a, identifier)
	})
}

// Source is a declaration.Descriptor over already loaded artifacts.
type Source struct {
	Artifacts  *Artifacts
	Identifier string
}

func (s Source) Entries() ([]property.Declaration, error) {
	return Inspect(s.Artifacts, s.Identifier)
}

// Inspect locates the struct type named by identifier and enumerates its
// property declarations in field order.
//
// identifier is either a bare type name, matched in every loaded package, or
// "import/path.Name". A package path also matches any loaded package whose
// import path ends in "/<path>", so "config.ApplicationProperties" finds the
// type in ".../config".
func Inspect(a *Artifacts, identifier string) ([]property.Declaration, error) {
	reg := declaration.NewRegistry()
	if err := Register(reg, a); err != nil {
		return nil, err
	}
	d, err := reg.Lookup(identifier)
	if err != nil {
		if errors.Is(err, declaration.ErrDeclarationNotFound) {
			pkgPath, _ := declaration.Split(identifier)
			if loadErrs := a.loadErrors(pkgPath); len(loadErrs) > 0 {
				return nil, errors.Join(append([]error{err}, loadErrs...)...)
			}
		}
		return nil, err
	}
	return d.Entries()
}

// Register adds every struct type declared at package level in a to reg,
// under "import/path.Name".
func Register(reg *declaration.Registry, a *Artifacts) error {
	for _, pkg := range a.Packages {
		if pkg.Types == nil {
			continue
		}
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			obj, ok := scope.Lookup(name).(*types.TypeName)
			if !ok {
				continue
			}
			st, ok := obj.Type().Underlying().(*types.Struct)
			if !ok {
				continue
			}
			s := &structType{artifacts: a, pkgPath: pkg.PkgPath, name: name, st: st}
			if err := reg.Register(s.qualifiedName(), s); err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
		}
	}
	return nil
}

// loadErrors collects the load errors of every package pkgPath would match.
func (a *Artifacts) loadErrors(pkgPath string) []error {
	var errs []error
	for _, pkg := range a.Packages {
		if pkgPath != "" && pkg.PkgPath != pkgPath && !strings.HasSuffix(pkg.PkgPath, "/"+pkgPath) {
			continue
		}
		for _, e := range pkg.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", pkg.PkgPath, e.Msg))
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Declaration objects
// ---------------------------------------------------------------------------

// structType is a declaration.Descriptor over one type-checked struct.
type structType struct {
	artifacts *Artifacts
	pkgPath   string
	name      string
	st        *types.Struct
}

func (s *structType) qualifiedName() string { return s.pkgPath + "." + s.name }

// Entries reads the fields carrying a property tag, in declaration order.
func (s *structType) Entries() ([]property.Declaration, error) {
	var decls []property.Declaration
	for i := 0; i < s.st.NumFields(); i++ {
		v := s.st.Field(i)
		tag := reflect.StructTag(s.st.Tag(i))
		key, ok := tag.Lookup(TagProperty)
		if !ok {
			continue
		}
		source := s.artifacts.position(v.Pos())
		fieldDecls, err := declarationsFor(strings.TrimSpace(key), tag, inferType(v.Type()), source)
		if err != nil {
			return nil, &FieldError{Declaration: s.qualifiedName(), Field: v.Name(), Source: source, Err: err}
		}
		decls = append(decls, fieldDecls...)
	}
	return decls, nil
}

func (a *Artifacts) position(pos token.Pos) string {
	if a.Fset == nil || !pos.IsValid() {
		return "-"
	}
	p := a.Fset.Position(pos)
	file := p.Filename
	if rel, err := filepath.Rel(a.Dir, file); err == nil && !strings.HasPrefix(rel, "..") {
		file = rel
	}
	return fmt.Sprintf("%s:%d", filepath.ToSlash(file), p.Line)
}

// ---------------------------------------------------------------------------
// Type inference
// ---------------------------------------------------------------------------

func inferType(t types.Type) property.ValueType {
	t = types.Unalias(t)
	if p, ok := t.(*types.Pointer); ok {
		t = types.Unalias(p.Elem())
	}
	if n, ok := t.(*types.Named); ok && n.Obj().Pkg() != nil {
		switch n.Obj().Pkg().Path() + "." + n.Obj().Name() {
		case "time.Duration":
			return property.Duration
		case "net/url.URL":
			return property.URL
		}
	}
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return ""
	}
	info := b.Info()
	switch {
	case info&types.IsBoolean != 0:
		return property.Boolean
	case info&types.IsInteger != 0:
		return property.Integer
	case info&types.IsFloat != 0:
		return property.Decimal
	case info&types.IsString != 0:
		return property.String
	}
	return ""
}

// ---------------------------------------------------------------------------
// Tag parsing
// ---------------------------------------------------------------------------

// declarationsFor turns one tagged field into declarations. kind is the value
// type inferred from the Go type, empty if it has none.
func declarationsFor(key string, tag reflect.StructTag, kind property.ValueType, source string) ([]property.Declaration, error) {
	typ := kind
	if t, ok := tag.Lookup(TagType); ok {
		var err error
		if typ, err = property.ParseValueType(t); err != nil {
			return nil, err
		}
	}
	if typ == "" {
		return nil, fmt.Errorf("%w: no value type for Go field type, add a %q tag", property.ErrInvalidType, TagType)
	}

	required := false
	if r, ok := tag.Lookup(TagRequired); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("%w: %s tag %q is not a boolean", ErrMalformedField, TagRequired, r)
		}
		required = b
	}

	var choices []string
	if c, ok := tag.Lookup(TagChoices); ok {
		choices = splitList(c, "|")
	}

	envs, hasEnvs := tag.Lookup(TagEnvironments)
	value, hasValue := tag.Lookup(TagValue)
	values, hasValues := tag.Lookup(TagValues)

	base := property.Declaration{
		Key:      key,
		Type:     typ,
		Choices:  choices,
		Required: required,
		Source:   source,
	}

	switch {
	case hasValues && (hasValue || hasEnvs):
		return nil, fmt.Errorf("%w: %s cannot be combined with %s or %s", ErrMalformedField, TagValues, TagValue, TagEnvironments)
	case hasValues:
		var out []property.Declaration
		for _, group := range strings.Split(values, ";") {
			group = strings.TrimSpace(group)
			if group == "" {
				continue
			}
			names, raw, ok := strings.Cut(group, "=")
			if !ok {
				return nil, fmt.Errorf("%w: %s group %q is not env=value", ErrMalformedField, TagValues, group)
			}
			d := base
			d.Environments = splitList(names, ",")
			d.Value = literal(raw)
			out = append(out, d)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: empty %s tag", ErrMalformedField, TagValues)
		}
		return out, nil
	case hasEnvs:
		d := base
		d.Environments = splitList(envs, ",")
		if hasValue {
			d.Value = literal(value)
		}
		return []property.Declaration{d}, nil
	}
	return nil, fmt.Errorf("%w: needs an %s or %s tag", ErrMalformedField, TagEnvironments, TagValues)
}

// literal is a value as written in a tag. Surrounding whitespace is not part
// of it, whichever tag it came from.
func literal(s string) string { return strings.TrimSpace(s) }

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
