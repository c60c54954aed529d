package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "import", "stale", "rescore", "refresh", "evaluate", "profile", "config"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "contract-radar", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	require.NotNil(t, importCmd.Flags().Lookup("csv"))
	require.NotNil(t, importCmd.Flags().Lookup("charset"))
}

func TestProfileCommand_HasSubcommands(t *testing.T) {
	cmds := profileCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"init", "show", "apply"} {
		assert.True(t, names[name], "profile should have subcommand %q", name)
	}
}

func TestRescoreCommand_RequiredFlags(t *testing.T) {
	require.NotNil(t, rescoreCmd.Flags().Lookup("company"))
	require.NotNil(t, staleCmd.Flags().Lookup("company"))
}
