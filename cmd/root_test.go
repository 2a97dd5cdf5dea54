package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "report", "predict", "cases"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "veracity", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestReportCommand_Flags(t *testing.T) {
	flag := reportCmd.PersistentFlags().Lookup("json")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)

	names := make(map[string]bool)
	for _, c := range reportCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
}

func TestCasesCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range casesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["export"])
	assert.True(t, names["review"])

	flag := casesExportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "critical_cases.xlsx", flag.DefValue)
}

func TestPredictCommand_RequiresText(t *testing.T) {
	assert.Error(t, predictCmd.Args(predictCmd, nil))
	assert.NoError(t, predictCmd.Args(predictCmd, []string{"some", "text"}))
}

func TestRootCommand_PreRunWrapsConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0o644))
	t.Chdir(dir)
	withConfig(t, nil)

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "veracity: load config")
	assert.Nil(t, cfg)
}
