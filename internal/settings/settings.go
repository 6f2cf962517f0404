// Package settings loads propactive configuration from .propactive/settings.yaml
// (or settings.toml) and layers it with environment variables and command
// line flags.
//
// Precedence, lowest first: built-in defaults, settings file, PROPACTIVE_*
// environment variables, flags. An empty value never overrides a lower layer.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"propactive/internal/inspect"
	"propactive/internal/pipeline"
)

// Dir is the settings directory, relative to the project root.
const Dir = ".propactive"

// candidates are tried in order; the first that exists wins.
var candidates = []string{"settings.yaml", "settings.yml", "settings.toml"}

// Environment variables read by FromEnv.
const (
	EnvEnvironments        = "PROPACTIVE_ENVIRONMENTS"
	EnvImplementationClass = "PROPACTIVE_IMPLEMENTATION_CLASS"
	EnvDestination         = "PROPACTIVE_DESTINATION"
	EnvFilenameOverride    = "PROPACTIVE_FILENAME_OVERRIDE"
	EnvBaseName            = "PROPACTIVE_BASE_NAME"
	EnvPatterns            = "PROPACTIVE_PATTERNS"
)

// ErrExists is returned by Save when a settings file is already present.
var ErrExists = errors.New("settings file already exists")

// Settings is one configuration layer.
type Settings struct {
	ImplementationClass string `yaml:"implementationClass,omitempty" toml:"implementationClass,omitempty"`
	Environments        List   `yaml:"environments,omitempty" toml:"environments,omitempty"`
	Destination         string `yaml:"destination,omitempty" toml:"destination,omitempty"`
	FilenameOverride    string `yaml:"filenameOverride,omitempty" toml:"filenameOverride,omitempty"`
	BaseName            string `yaml:"baseName,omitempty" toml:"baseName,omitempty"`
	// Patterns are the Go package patterns searched for the declaration.
	Patterns List `yaml:"patterns,omitempty" toml:"patterns,omitempty"`
}

// List is a string list that may be written either as a sequence or as one
// comma-separated string.
type List []string

func (l *List) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = pipeline.ParseEnvironments(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

func (l *List) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		*l = pipeline.ParseEnvironments(v)
		return nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected a list of strings, found %T", item)
			}
			items = append(items, s)
		}
		*l = items
		return nil
	}
	return fmt.Errorf("expected a string or a list of strings, found %T", v)
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	o := pipeline.DefaultOptions()
	return Settings{
		ImplementationClass: o.ImplementationClass,
		Environments:        List(o.Environments),
		Destination:         o.Destination,
		BaseName:            o.BaseName,
		Patterns:            List{inspect.DefaultPattern},
	}
}

// Options converts s into pipeline options.
func (s Settings) Options() pipeline.Options {
	return pipeline.Options{
		Environments:        []string(s.Environments),
		ImplementationClass: s.ImplementationClass,
		Destination:         s.Destination,
		FilenameOverride:    s.FilenameOverride,
		BaseName:            s.BaseName,
	}
}

// Load reads the settings file under root/.propactive. It returns a nil
// *Settings (not an error) if there is none, along with the path it read.
func Load(root string) (*Settings, string, error) {
	for _, name := range candidates {
		path := filepath.Join(root, Dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("read %s: %w", path, err)
		}
		var s Settings
		if strings.HasSuffix(name, ".toml") {
			err = toml.Unmarshal(data, &s)
		} else {
			err = yaml.Unmarshal(data, &s)
		}
		if err != nil {
			return nil, path, fmt.Errorf("unmarshal %s: %w", path, err)
		}
		return &s, path, nil
	}
	return nil, "", nil
}

// FromEnv builds a layer from PROPACTIVE_* variables found through lookup,
// typically os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) Settings {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	return Settings{
		ImplementationClass: get(EnvImplementationClass),
		Environments:        pipeline.ParseEnvironments(get(EnvEnvironments)),
		Destination:         get(EnvDestination),
		FilenameOverride:    get(EnvFilenameOverride),
		BaseName:            get(EnvBaseName),
		Patterns:            pipeline.ParseEnvironments(get(EnvPatterns)),
	}
}

// Merge layers each of over onto base; later layers win for every non-empty
// field.
func Merge(base Settings, over ...Settings) (Settings, error) {
	out := base
	for _, layer := range over {
		if err := mergo.Merge(&out, layer, mergo.WithOverride); err != nil {
			return Settings{}, fmt.Errorf("merge settings: %w", err)
		}
	}
	return out, nil
}

// Resolve merges defaults, the settings file under root, the process
// environment and flags. It returns the merged settings and the settings
// file path, empty if none was found.
func Resolve(root string, lookup func(string) (string, bool), flags Settings) (Settings, string, error) {
	file, path, err := Load(root)
	if err != nil {
		return Settings{}, path, err
	}
	layers := []Settings{}
	if file != nil {
		layers = append(layers, *file)
	}
	if lookup != nil {
		layers = append(layers, FromEnv(lookup))
	}
	layers = append(layers, flags)
	merged, err := Merge(Defaults(), layers...)
	return merged, path, err
}

// Save writes s to root/.propactive/settings.yaml. It fails with ErrExists
// if any settings file is already present.
func Save(root string, s Settings) (string, error) {
	for _, name := range candidates {
		existing := filepath.Join(root, Dir, name)
		if _, err := os.Stat(existing); err == nil {
			return existing, fmt.Errorf("%w: %s", ErrExists, existing)
		}
	}
	path := filepath.Join(root, Dir, candidates[0])
	data, err := yaml.Marshal(s)
	if err != nil {
		return path, fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("create %s: %w", Dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("write settings: %w", err)
	}
	return path, nil
}
