// Package property defines a single configuration entry as discovered from a
// declaration object, and the closed set of value types it may carry.
package property

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// ValueType constrains the literal forms a property value may take.
type ValueType string

const (
	String   ValueType = "string"
	Integer  ValueType = "integer"
	Decimal  ValueType = "decimal"
	Boolean  ValueType = "boolean"
	Duration ValueType = "duration"
	URL      ValueType = "url"
	Enum     ValueType = "enum"
)

// ErrInvalidType is wrapped by errors reporting a value type that is unknown
// or a literal that does not parse as its declared type.
var ErrInvalidType = errors.New("invalid property type")

// ValueTypes lists every supported value type.
var ValueTypes = []ValueType{String, Integer, Decimal, Boolean, Duration, URL, Enum}

// ParseValueType resolves a type tag such as "integer" or "INT". The empty
// string resolves to String.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "str":
		return String, nil
	case "integer", "int", "long":
		return Integer, nil
	case "decimal", "float", "double":
		return Decimal, nil
	case "boolean", "bool":
		return Boolean, nil
	case "duration":
		return Duration, nil
	case "url", "uri":
		return URL, nil
	case "enum", "choice":
		return Enum, nil
	}
	names := make([]string, len(ValueTypes))
	for i, t := range ValueTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("%w: unknown value type %q, want one of %s", ErrInvalidType, s, strings.Join(names, ", "))
}

// Check reports whether value is an acceptable literal for t. Choices are only
// consulted for Enum.
func (t ValueType) Check(value string, choices []string) error {
	var err error
	switch t {
	case String:
		return nil
	case Integer:
		_, err = cast.ToInt64E(value)
	case Decimal:
		_, err = cast.ToFloat64E(value)
	case Boolean:
		_, err = cast.ToBoolE(value)
	case Duration:
		_, err = cast.ToDurationE(value)
	case URL:
		var u *url.URL
		u, err = url.Parse(value)
		if err == nil && (u.Scheme == "" || u.Host == "" && u.Opaque == "") {
			err = fmt.Errorf("%q is not an absolute url", value)
		}
	case Enum:
		if len(choices) == 0 {
			return fmt.Errorf("enum has no choices")
		}
		if !slices.Contains(choices, value) {
			return fmt.Errorf("%q is not one of [%s]", value, strings.Join(choices, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown value type %q", string(t))
	}
	if err != nil {
		return fmt.Errorf("%q is not a valid %s: %w", value, t, err)
	}
	return nil
}

// Declaration is one configuration entry: a key/value pair scoped to one or
// more environments.
type Declaration struct {
	Key          string
	Value        string
	Type         ValueType
	Choices      []string
	Environments []string
	Required     bool

	// Source is the file:line the entry was discovered at, if known.
	Source string
}

// String renders the declaration the way it is shown in logs.
func (d Declaration) String() string {
	s := fmt.Sprintf("%s=%s [%s] (%s)", d.Key, d.Value, strings.Join(d.Environments, ","), d.Type)
	if d.Required {
		s += " required"
	}
	return s
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// ValidKey reports whether key is a non-empty dot-segment identifier such as
// "service.timeout".
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
