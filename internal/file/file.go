// Package file renders environments into properties files, filters them by
// requested environment and writes them out.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"propactive/internal/environment"
)

const (
	// DefaultBaseName is the part of the filename after "<environment>-".
	DefaultBaseName = "application"
	// Extension of every generated file.
	Extension = ".properties"
	// AllEnvironments is the sentinel meaning "every declared environment".
	AllEnvironments = "*"
)

// ErrFilenameOverrideConflict means a filename override would make more than
// one environment write to the same path.
var ErrFilenameOverrideConflict = errors.New("filename override conflict")

// Generated is one environment rendered into a write-ready file.
type Generated struct {
	Environment string
	Filename    string
	Content     string
}

// Name returns override if set, otherwise the default filename.
func (g Generated) Name(override string) string {
	if override != "" {
		return override
	}
	return g.Filename
}

// Path returns where g lands inside destination.
func (g Generated) Path(destination, override string) string {
	return filepath.Join(destination, g.Name(override))
}

// Filename returns "<environment>-<baseName>.properties".
func Filename(env, baseName string) string {
	if baseName == "" {
		baseName = DefaultBaseName
	}
	return env + "-" + baseName + Extension
}

// Render turns each environment into a Generated file. It performs no I/O and
// the same environment always renders to the same bytes.
func Render(envs []environment.Environment, baseName string) []Generated {
	files := make([]Generated, 0, len(envs))
	for _, env := range envs {
		files = append(files, Generated{
			Environment: env.Name,
			Filename:    Filename(env.Name, baseName),
			Content:     Content(env),
		})
	}
	return files
}

// Content serialises env as one key=value line per property, in order, each
// terminated by a newline.
func Content(env environment.Environment) string {
	var sb strings.Builder
	for _, p := range env.Properties {
		sb.WriteString(escapeKey(p.Key))
		sb.WriteByte('=')
		sb.WriteString(escapeValue(p.Value))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// escapeKey escapes the characters that would otherwise end a key. Valid dot
// identifiers never contain any of them.
func escapeKey(k string) string {
	if !strings.ContainsAny(k, " \t\f=:#!\\\n\r") {
		return k
	}
	var sb strings.Builder
	for _, r := range k {
		switch r {
		case ' ', '=', ':', '#', '!', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteString(escapeControl(r))
		}
	}
	return sb.String()
}

// escapeValue escapes only what the properties format requires in a value:
// backslashes, line terminators and leading whitespace.
func escapeValue(v string) string {
	if !strings.ContainsAny(v, "\\\n\r\t\f") && !strings.HasPrefix(v, " ") {
		return v
	}
	var sb strings.Builder
	leading := true
	for _, r := range v {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == ' ' && leading:
			sb.WriteString(`\ `)
			continue
		default:
			sb.WriteString(escapeControl(r))
		}
		leading = false
	}
	return sb.String()
}

func escapeControl(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\f':
		return `\f`
	}
	return string(r)
}

// IsAll reports whether requested selects every environment: it is empty or
// contains the AllEnvironments sentinel.
func IsAll(requested []string) bool {
	return len(requested) == 0 || slices.Contains(requested, AllEnvironments)
}

// Filter keeps the files whose environment was requested, in their original
// order. Requested names that match nothing are ignored.
func Filter(files []Generated, requested []string) []Generated {
	if IsAll(requested) {
		return files
	}
	var out []Generated
	for _, f := range files {
		if slices.Contains(requested, f.Environment) {
			out = append(out, f)
		}
	}
	return out
}

// Unmatched returns the requested names, other than the sentinel, that are
// not among names.
func Unmatched(requested, names []string) []string {
	var out []string
	for _, r := range requested {
		if r != AllEnvironments && !slices.Contains(names, r) {
			out = append(out, r)
		}
	}
	return out
}

// CheckOverride fails with ErrFilenameOverrideConflict when the selected files
// would not each land on a distinct path.
func CheckOverride(files []Generated, destination, override string) error {
	if override != "" && len(files) > 1 {
		envs := make([]string, len(files))
		for i, f := range files {
			envs[i] = f.Environment
		}
		return fmt.Errorf("%w: %q given for %d environments (%s); select exactly one",
			ErrFilenameOverrideConflict, override, len(files), strings.Join(envs, ", "))
	}
	seen := make(map[string]string, len(files))
	for _, f := range files {
		p := f.Path(destination, override)
		if other, ok := seen[p]; ok {
			return fmt.Errorf("%w: environments %q and %q both resolve to %s",
				ErrFilenameOverrideConflict, other, f.Environment, p)
		}
		seen[p] = f.Environment
	}
	return nil
}

// WriteError reports a file that could not be written.
type WriteError struct {
	Environment string
	Path        string
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s properties to %s: %v", e.Environment, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer persists a generated file and returns the path written.
type Writer interface {
	Write(f Generated, destination, override string) (string, error)
}

// DirWriter writes files to disk, creating the destination directory.
type DirWriter struct{}

func (DirWriter) Write(f Generated, destination, override string) (string, error) {
	path := f.Path(destination, override)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &WriteError{Environment: f.Environment, Path: path, Err: err}
	}
	if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
		return "", &WriteError{Environment: f.Environment, Path: path, Err: err}
	}
	return path, nil
}

// DryRunWriter reports the path it would write and touches nothing.
type DryRunWriter struct{}

func (DryRunWriter) Write(f Generated, destination, override string) (string, error) {
	return f.Path(destination, override), nil
}
