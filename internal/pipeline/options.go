package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"propactive/internal/file"
)

// Defaults applied by DefaultOptions.
const (
	DefaultImplementationClass = "ApplicationProperties"
	DefaultDestination         = "build/properties"
)

// Options configures one run. It is a plain value: copy it, never share a
// pointer to it between runs.
type Options struct {
	// Environments lists the environments to write or report. The
	// file.AllEnvironments sentinel (or an empty list) selects all of them.
	Environments []string
	// ImplementationClass identifies the declaration object, either a bare
	// type name or "import/path.Name".
	ImplementationClass string
	// Destination is the output directory for generated files.
	Destination string
	// FilenameOverride replaces the default filename. Only valid when exactly
	// one environment is selected.
	FilenameOverride string
	// BaseName is the filename part after "<environment>-".
	BaseName string
}

// DefaultOptions returns every environment, the ApplicationProperties type,
// build/properties and the "application" base name.
func DefaultOptions() Options {
	return Options{
		Environments:        []string{file.AllEnvironments},
		ImplementationClass: DefaultImplementationClass,
		Destination:         DefaultDestination,
		BaseName:            file.DefaultBaseName,
	}
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	if strings.TrimSpace(o.ImplementationClass) == "" {
		return fmt.Errorf("options: implementationClass is empty")
	}
	if strings.TrimSpace(o.Destination) == "" {
		return fmt.Errorf("options: destination is empty")
	}
	if o.FilenameOverride != "" && (filepath.Base(o.FilenameOverride) != o.FilenameOverride || o.FilenameOverride == "." || o.FilenameOverride == "..") {
		return fmt.Errorf("options: filenameOverride %q must be a bare filename", o.FilenameOverride)
	}
	if strings.ContainsAny(o.BaseName, `/\`) {
		return fmt.Errorf("options: baseName %q must not contain path separators", o.BaseName)
	}
	return nil
}

// ParseEnvironments splits a comma-separated environment list, trimming
// spaces and dropping empty and repeated names.
func ParseEnvironments(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
