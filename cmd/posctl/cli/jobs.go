package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	client, err := jobs.NewClient(cache.QueueOpt(redisAddr))
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(cache.QueueOpt(redisAddr))
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskCatalogWarmup:
		return c.client.EnqueueCatalogWarmup(ctx)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Stats reports the queue metrics of the POS queues.
func (c *JobsCLI) Stats() ([]jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueues(c.inspector)
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	withCLI := func(run func(cmd *cobra.Command, c *JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), envNeeds{})
			if err != nil {
				return err
			}
			defer e.Close()
			c, err := NewJobsCLI(e.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return run(cmd, c, args)
		}
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depths",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, _ []string) error {
			queues, err := c.Stats()
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), queues)
			}
			for _, q := range queues {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived)
			}
			return nil
		}),
	}

	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job now (supported: " + jobs.TaskCatalogWarmup + ")",
		Args:  cobra.ExactArgs(1),
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s as %s\n", info.Type, info.Queue, info.ID)
			return nil
		}),
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled [queue]",
		Short: "List scheduled tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			queue := jobs.QueueDefault
			if len(args) == 1 {
				queue = args[0]
			}
			tasks, err := c.ListScheduled(queue, size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(stats, trigger, scheduled)
	return cmd
}
