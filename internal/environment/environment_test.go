package environment_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propactive/internal/environment"
	"propactive/internal/property"
)

func decl(key, value string, envs ...string) property.Declaration {
	return property.Declaration{Key: key, Value: value, Type: property.String, Environments: envs}
}

func TestBuildFansOutInDiscoveryOrder(t *testing.T) {
	set, err := environment.Build([]property.Declaration{
		decl("b.first", "1", "test", "prod"),
		decl("a.second", "2", "stage"),
		decl("c.third", "3", "prod", "test"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "prod", "stage"}, set.Names())

	test, ok := set.Get("test")
	require.True(t, ok)
	require.Len(t, test.Properties, 2)
	assert.Equal(t, "b.first", test.Properties[0].Key)
	assert.Equal(t, "c.third", test.Properties[1].Key)
	assert.Equal(t, []string{"test"}, test.Properties[0].Environments)

	stage, _ := set.Get("stage")
	require.Len(t, stage.Properties, 1)
	assert.Equal(t, "a.second", stage.Properties[0].Key)

	_, ok = set.Get("missing")
	assert.False(t, ok)
}

func TestBuildAllowsSameKeyAcrossEnvironments(t *testing.T) {
	set, err := environment.Build([]property.Declaration{
		decl("service.host", "localhost", "test"),
		decl("service.host", "svc.internal", "prod"),
	})
	require.NoError(t, err)
	prod, _ := set.Get("prod")
	assert.Equal(t, "svc.internal", prod.Properties[0].Value)
}

func TestBuildKeysUniquePerEnvironment(t *testing.T) {
	set, err := environment.Build([]property.Declaration{
		decl("a", "1", "test", "prod"),
		decl("b", "2", "test"),
		decl("c", "3", "prod", "stage"),
	})
	require.NoError(t, err)
	for _, env := range set.All() {
		seen := map[string]bool{}
		for _, p := range env.Properties {
			assert.False(t, seen[p.Key], "duplicate %s in %s", p.Key, env.Name)
			seen[p.Key] = true
		}
	}
}

func TestBuildFailures(t *testing.T) {
	required := decl("db.password", "", "stage")
	required.Required = true

	badInt := decl("service.timeout", "soon", "prod")
	badInt.Type = property.Integer

	tests := []struct {
		name  string
		decls []property.Declaration
		want  error
		env   string
		key   string
	}{
		{"no declarations", nil, environment.ErrNoEnvironmentsDeclared, "", ""},
		{"duplicate key", []property.Declaration{decl("a.b", "1", "test"), decl("a.b", "2", "test")}, environment.ErrDuplicateProperty, "test", "a.b"},
		{"missing required", []property.Declaration{required}, environment.ErrMissingRequiredProperty, "stage", "db.password"},
		{"invalid type", []property.Declaration{badInt}, environment.ErrInvalidPropertyType, "prod", "service.timeout"},
		{"invalid key", []property.Declaration{decl("a..b", "1", "test")}, environment.ErrInvalidKey, "test", "a..b"},
		{"no environments on entry", []property.Declaration{decl("a.b", "1")}, environment.ErrInvalidEnvironment, "", "a.b"},
		{"parent directory", []property.Declaration{decl("a.b", "1", "../escaped")}, environment.ErrInvalidEnvironment, "../escaped", "a.b"},
		{"slash", []property.Declaration{decl("a.b", "1", "eu/prod")}, environment.ErrInvalidEnvironment, "eu/prod", "a.b"},
		{"backslash", []property.Declaration{decl("a.b", "1", `eu\prod`)}, environment.ErrInvalidEnvironment, `eu\prod`, "a.b"},
		{"dot dot", []property.Declaration{decl("a.b", "1", "..")}, environment.ErrInvalidEnvironment, "..", "a.b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := environment.Build(tt.decls)
			require.Error(t, err)
			assert.Nil(t, set)
			assert.True(t, errors.Is(err, tt.want), err)

			var perr *environment.PropertyError
			if errors.As(err, &perr) {
				assert.Equal(t, tt.env, perr.Environment)
				assert.Equal(t, tt.key, perr.Key)
			}
		})
	}
}

func TestBuildRepeatedEnvironmentOnOneEntry(t *testing.T) {
	set, err := environment.Build([]property.Declaration{
		decl("a.b", "1", "test", "prod", "test"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "prod"}, set.Names())
	test, _ := set.Get("test")
	require.Len(t, test.Properties, 1)
	assert.Equal(t, "a.b", test.Properties[0].Key)
}

func TestBuildFailsWholeSetOnOneBrokenEnvironment(t *testing.T) {
	_, err := environment.Build([]property.Declaration{
		decl("ok", "1", "test"),
		decl("dup", "1", "prod"),
		decl("dup", "2", "prod"),
	})
	assert.ErrorIs(t, err, environment.ErrDuplicateProperty)
}

func TestBuildOptionalEmptyValueSkipsTypeCheck(t *testing.T) {
	d := decl("service.port", "", "test")
	d.Type = property.Integer
	_, err := environment.Build([]property.Declaration{d})
	assert.NoError(t, err)
}

func TestSelect(t *testing.T) {
	set, err := environment.Build([]property.Declaration{decl("a", "1", "test", "stage", "prod")})
	require.NoError(t, err)
	got := set.Select(func(name string) bool { return name != "stage" })
	assert.Equal(t, []string{"test", "prod"}, got.Names())
	assert.Equal(t, 3, set.Len())
}
