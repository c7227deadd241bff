package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskboard.db")
	t.Setenv("PORT", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("TASKBOARD_STORE_DRIVER", "sqlite")
	t.Setenv("TASKBOARD_STORE_DSN", path)
	t.Setenv("TASKBOARD_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "sqlite schema up to date\n", out.String())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("TASKBOARD_STORE_DRIVER", "postgres")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn is required")
}

func TestSubcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
