// Package pipeline runs the inspect, build, render, filter and write stages
// in one of two modes: Validate, which never renders or writes, and
// Generate, which writes one file per selected environment.
//
// Every failure before the write stage aborts the run with nothing written.
// Write failures are collected per file; files already written stay on disk.
package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"propactive/internal/declaration"
	"propactive/internal/environment"
	"propactive/internal/file"
)

// Stage names a state of a run.
type Stage string

const (
	Inspecting Stage = "inspecting"
	Building   Stage = "building"
	Rendering  Stage = "rendering"
	Filtering  Stage = "filtering"
	Writing    Stage = "writing"
	Valid      Stage = "valid"
	Invalid    Stage = "invalid"
	Done       Stage = "done"
	Failed     Stage = "failed"
)

// Observer is told about every stage a run enters. detail is the stage's
// input or output: the declarations, the environment set, the files, or the
// error for Invalid and Failed.
type Observer func(stage Stage, detail any)

// Result describes a Generate run.
type Result struct {
	// Environments are the names of every declared environment.
	Environments []string
	// Files are the generated files selected for writing, in emission order.
	Files []file.Generated
	// Written holds the path of every file written successfully.
	Written []string
	// Unmatched lists requested environment names that matched nothing.
	Unmatched []string
}

// Runner runs pipelines. The zero value is ready to use.
type Runner struct {
	Observer Observer
}

func (r Runner) notify(stage Stage, detail any) {
	if r.Observer != nil {
		r.Observer(stage, detail)
	}
}

// Validate inspects and builds the declaration without rendering or writing.
// The returned set holds only the requested environments, but every
// declared environment must be valid for Validate to succeed.
func Validate(d declaration.Descriptor, opts Options) (*environment.Set, error) {
	return Runner{}.Validate(d, opts)
}

// Generate runs the full pipeline and writes through w.
func Generate(d declaration.Descriptor, opts Options, w file.Writer) (*Result, error) {
	return Runner{}.Generate(d, opts, w)
}

func (r Runner) Validate(d declaration.Descriptor, opts Options) (*environment.Set, error) {
	if strings.TrimSpace(opts.ImplementationClass) == "" {
		return nil, r.fail(Invalid, fmt.Errorf("options: implementationClass is empty"))
	}
	set, err := r.build(d)
	if err != nil {
		return nil, r.fail(Invalid, err)
	}
	selected := set
	if !file.IsAll(opts.Environments) {
		selected = set.Select(func(name string) bool { return slices.Contains(opts.Environments, name) })
	}
	r.notify(Valid, selected)
	return selected, nil
}

func (r Runner) Generate(d declaration.Descriptor, opts Options, w file.Writer) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, r.fail(Failed, err)
	}
	if w == nil {
		return nil, r.fail(Failed, fmt.Errorf("pipeline: nil writer"))
	}
	set, err := r.build(d)
	if err != nil {
		return nil, r.fail(Failed, err)
	}

	files := file.Render(set.All(), opts.BaseName)
	r.notify(Rendering, files)

	selected := file.Filter(files, opts.Environments)
	r.notify(Filtering, selected)

	res := &Result{
		Environments: set.Names(),
		Files:        selected,
		Unmatched:    file.Unmatched(opts.Environments, set.Names()),
	}
	if err := file.CheckOverride(selected, opts.Destination, opts.FilenameOverride); err != nil {
		return res, r.fail(Failed, err)
	}

	var errs []error
	for _, f := range selected {
		r.notify(Writing, f)
		path, err := w.Write(f, opts.Destination, opts.FilenameOverride)
		if err != nil {
			var werr *file.WriteError
			if !errors.As(err, &werr) {
				err = &file.WriteError{Environment: f.Environment, Path: f.Path(opts.Destination, opts.FilenameOverride), Err: err}
			}
			errs = append(errs, err)
			continue
		}
		res.Written = append(res.Written, path)
	}
	if len(errs) > 0 {
		return res, r.fail(Failed, errors.Join(errs...))
	}
	r.notify(Done, res)
	return res, nil
}

func (r Runner) build(d declaration.Descriptor) (*environment.Set, error) {
	if d == nil {
		return nil, fmt.Errorf("pipeline: nil descriptor")
	}
	r.notify(Inspecting, nil)
	decls, err := d.Entries()
	if err != nil {
		return nil, err
	}
	r.notify(Building, decls)
	return environment.Build(decls)
}

func (r Runner) fail(stage Stage, err error) error {
	r.notify(stage, err)
	return err
}
