package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propactive/internal/environment"
	"propactive/internal/file"
	"propactive/internal/settings"
)

func helpText() string {
	var sb strings.Builder
	printUsage(&sb)
	return sb.String()
}

func longHelpText(name string) string {
	var sb strings.Builder
	printCommandHelp(&sb, name)
	return sb.String()
}

func TestHelpContainsAllCommands(t *testing.T) {
	help := helpText()
	assert.Contains(t, help, "Usage:")
	for _, cmd := range commands {
		assert.Contains(t, help, cmd.name)
		assert.Contains(t, help, cmd.short)
	}
}

func TestLongHelpForKnownCommands(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.name, func(t *testing.T) {
			assert.Contains(t, longHelpText(cmd.name), cmd.usage)
		})
	}
}

func TestLongHelpUnknownCommand(t *testing.T) {
	assert.Contains(t, longHelpText("no-such-command"), "unknown")
}

func TestDispatchHelp(t *testing.T) {
	for _, args := range [][]string{nil, {"--help"}, {"-h"}, {"help"}, {"help", "generate"}} {
		assert.NoError(t, dispatch(args), args)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch([]string{"no-such-command-xyz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestSubcommandBadFlags(t *testing.T) {
	for _, name := range []string{"generate", "validate", "init"} {
		t.Run(name, func(t *testing.T) {
			err := dispatch([]string{name, "-no-such-flag"})
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "unknown command")
		})
	}
}

func TestCommandsHaveRequiredFields(t *testing.T) {
	require.NotEmpty(t, commands)
	for _, cmd := range commands {
		assert.NotEmpty(t, cmd.name)
		assert.NotEmpty(t, cmd.short)
		assert.NotEmpty(t, cmd.usage)
		assert.NotNil(t, cmd.run, cmd.name)
	}
}

// ---------------------------------------------------------------------------
// end to end
// ---------------------------------------------------------------------------

const declarationSource = "package app\n\n" +
	"type ApplicationProperties struct {\n" +
	"\tTimeout int `property:\"service.timeout\" environments:\"test,prod\" value:\"30\"`\n" +
	"\tHost string `property:\"service.host\" values:\"test=localhost;stage,prod=svc.internal\"`\n" +
	"}\n"

func writeProject(t *testing.T, source string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n\ngo 1.22\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "props.go"), []byte(source), 0o644))
	return root
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		settings.EnvEnvironments, settings.EnvImplementationClass, settings.EnvDestination,
		settings.EnvFilenameOverride, settings.EnvBaseName, settings.EnvPatterns,
	} {
		t.Setenv(k, "")
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)

	require.NoError(t, dispatch([]string{"generate", "-dir", root}))

	dest := filepath.Join(root, "build", "properties")
	want := map[string]string{
		"test-application.properties":  "service.timeout=30\nservice.host=localhost\n",
		"stage-application.properties": "service.host=svc.internal\n",
		"prod-application.properties":  "service.timeout=30\nservice.host=svc.internal\n",
	}
	for name, content := range want {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(data), name)
	}
}

func TestGenerateSingleEnvironmentWithOverride(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)

	require.NoError(t, dispatch([]string{
		"generate", "-dir", root, "-environments", "stage",
		"-destination", "out", "-filenameOverride", "custom.properties",
	}))

	entries, err := os.ReadDir(filepath.Join(root, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "custom.properties", entries[0].Name())
}

func TestGenerateOverrideConflict(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)

	err := dispatch([]string{"generate", "-dir", root, "-environments", "test,prod", "-filenameOverride", "custom.properties"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, file.ErrFilenameOverrideConflict))
	_, statErr := os.Stat(filepath.Join(root, "build"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerateDryRunWritesNothing(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)

	require.NoError(t, dispatch([]string{"generate", "-dir", root, "-dry-run"}))
	_, err := os.Stat(filepath.Join(root, "build"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateEndToEnd(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)
	require.NoError(t, dispatch([]string{"validate", "-dir", root, "-environments", "prod"}))

	broken := writeProject(t, "package app\n\n"+
		"type ApplicationProperties struct {\n"+
		"\tA string `property:\"a.b\" environments:\"test\" value:\"1\"`\n"+
		"\tB string `property:\"a.b\" environments:\"test\" value:\"2\"`\n"+
		"}\n")
	err := dispatch([]string{"validate", "-dir", broken})
	assert.True(t, errors.Is(err, environment.ErrDuplicateProperty), err)
	_, statErr := os.Stat(filepath.Join(broken, "build"))
	assert.True(t, os.IsNotExist(statErr))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func TestUnmatchedEnvironmentsWarnInBothModes(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)

	for _, args := range [][]string{
		{"validate", "-dir", root, "-environments", "prod,qa"},
		{"generate", "-dir", root, "-environments", "prod,qa", "-dry-run"},
	} {
		buf := captureLog(t)
		require.NoError(t, dispatch(args), args[0])
		assert.Contains(t, buf.String(), "Requested environments are not declared", args[0])
		assert.Contains(t, buf.String(), "requested=qa", args[0])
	}
}

func TestGenerateUsesSettingsFile(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, declarationSource)
	require.NoError(t, dispatch([]string{"init", "-dir", root, "-yes"}))

	s, path, err := settings.Load(root)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, filepath.Join(root, settings.Dir, "settings.yaml"), path)
	assert.Equal(t, "ApplicationProperties", s.ImplementationClass)

	require.Error(t, dispatch([]string{"init", "-dir", root, "-yes"}))

	t.Setenv(settings.EnvEnvironments, "prod")
	require.NoError(t, dispatch([]string{"generate", "-dir", root}))
	entries, err := os.ReadDir(filepath.Join(root, "build", "properties"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prod-application.properties", entries[0].Name())
}
