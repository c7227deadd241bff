package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/service"
	"taskboard/pkg/notification"
	"taskboard/pkg/task"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskboard.db")
	ctx := context.Background()

	stores, err := db.Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer stores.Close(ctx)
	require.NoError(t, stores.EnsureSchema(ctx))

	svc := service.NewTaskService(stores.Tasks, stores.Notifications, zap.NewNop())
	for _, name := range []string{"Write spec", "Review spec"} {
		_, err := svc.Create(ctx, service.TaskInput{
			Name:          name,
			Description:   "first draft",
			DueDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Priority:      task.PriorityHigh,
			Status:        task.StatusPending,
			CreatorEmail:  "a@x.com",
			Collaborators: []string{"b@x.com"},
		})
		require.NoError(t, err)
	}

	t.Setenv("PORT", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("TASKBOARD_STORE_DRIVER", "sqlite")
	t.Setenv("TASKBOARD_STORE_DSN", path)
	t.Setenv("TASKBOARD_LOG_LEVEL", "error")
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestTasksListShort(t *testing.T) {
	seedSQLite(t)

	out := run(t, "tasks", "list", "--name", "write", "--format", "short")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "2025-01-01")
	assert.Contains(t, lines[0], "Pending")
	assert.Contains(t, lines[0], "Write spec")
}

func TestTasksListJSON(t *testing.T) {
	seedSQLite(t)

	var list []task.Task
	require.NoError(t, json.Unmarshal([]byte(run(t, "tasks", "list", "--associated", "b@x.com")), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Write spec", list[0].Name)

	var got task.Task
	require.NoError(t, json.Unmarshal([]byte(run(t, "tasks", "get", list[1].ID)), &got))
	assert.Equal(t, "Review spec", got.Name)
}

func TestTasksStatus(t *testing.T) {
	seedSQLite(t)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(run(t, "tasks", "status")), &counts))
	assert.Equal(t, map[string]int{"total": 2, "Pending": 2}, counts)
}

func TestNotificationsCmd(t *testing.T) {
	seedSQLite(t)

	var feed []notification.Notification
	require.NoError(t, json.Unmarshal([]byte(run(t, "notifications", "b@x.com")), &feed))
	require.Len(t, feed, 2)
	assert.Equal(t, `Task "Review spec" created by "a@x.com"`, feed[0].Message)
}

func TestTruncStr(t *testing.T) {
	assert.Equal(t, "short", truncStr("short", 10))
	assert.Equal(t, "abcdefg...", truncStr("abcdefghijklmnop", 10))
}
