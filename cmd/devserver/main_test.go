package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MIPROJET_DEVSERVER_TEST=from-file\n"), 0o600))
	t.Setenv("MIPROJET_DEVSERVER_TEST", "")
	require.NoError(t, os.Unsetenv("MIPROJET_DEVSERVER_TEST"))

	require.NoError(t, loadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("MIPROJET_DEVSERVER_TEST"))
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--addr", ":9090", "--env-file", "local.env"}))
	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	require.Equal(t, ":9090", addr)
	envFile, err := cmd.Flags().GetString("env-file")
	require.NoError(t, err)
	require.Equal(t, "local.env", envFile)
}
