package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/db"
	"taskboard/internal/logging"
	"taskboard/internal/service"
	"taskboard/pkg/task"
)

// withServices opens the configured store for a one-shot admin command.
func withServices(cmd *cobra.Command, configPath string, fn func(context.Context, *service.TaskService, *service.NotificationService) error) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx := cmd.Context()
	stores, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer stores.Close(ctx)

	// Admin reads never append notifications, so no publisher is wired.
	tasks := service.NewTaskService(stores.Tasks, stores.Notifications, logger.With(zap.String("cmd", cmd.Name())))
	return fn(ctx, tasks, service.NewNotificationService(stores.Notifications))
}

func newTasksCmd(configPath *string) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect tasks in the configured store",
	}

	var (
		f      task.Filter
		format string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks matching the given filters.

Examples:
  taskboard tasks list --associated a@x.com
  taskboard tasks list --status Pending --format short`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, *configPath, func(ctx context.Context, tasks *service.TaskService, _ *service.NotificationService) error {
				list, err := tasks.List(ctx, f)
				if err != nil {
					return err
				}
				if format == "short" {
					printShortTasks(cmd.OutOrStdout(), list)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	list.Flags().StringVar(&f.Name, "name", "", "case-insensitive name substring")
	list.Flags().StringVar(&f.CreatorEmail, "creator", "", "creator email")
	list.Flags().StringVar((*string)(&f.Status), "status", "", "Pending, In Progress or Completed")
	list.Flags().StringVar((*string)(&f.Priority), "priority", "", "Low, Medium or High")
	list.Flags().StringVar(&f.AssociatedEmail, "associated", "", "creator, collaborator or viewer email")
	list.Flags().StringVar(&format, "format", "json", "json or short")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, *configPath, func(ctx context.Context, tasks *service.TaskService, _ *service.NotificationService) error {
				t, err := tasks.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Count tasks by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, *configPath, func(ctx context.Context, tasks *service.TaskService, _ *service.NotificationService) error {
				list, err := tasks.List(ctx, task.Filter{})
				if err != nil {
					return err
				}
				counts := map[string]int{"total": len(list)}
				for _, t := range list {
					counts[string(t.Status)]++
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}

	tasksCmd.AddCommand(list, get, status)
	return tasksCmd
}

func newNotificationsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications <email>",
		Short: "Show the notification feed of a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, *configPath, func(ctx context.Context, _ *service.TaskService, feed *service.NotificationService) error {
				list, err := feed.ListForUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

func truncStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printShortTasks(w io.Writer, tasks []task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.Before(tasks[j].DueDate) })
	for _, t := range tasks {
		fmt.Fprintf(w, "%-10s  %-11s  %-6s  %s\n", t.DueDate.Format("2006-01-02"), t.Status, t.Priority, truncStr(t.Name, 60))
	}
}
