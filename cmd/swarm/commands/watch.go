package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/dyluth/swarm/internal/timespec"
	"github.com/dyluth/swarm/internal/watch"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	watchForTask  bool
	watchTimeout  time.Duration
	watchInterval time.Duration
	watchSince    string
	watchOutput   string
)

var watchCmd = &cobra.Command{
	Use:   "watch AGENT",
	Short: "Stream an agent's incoming messages",
	Long: `Print messages as they arrive in an agent's mailbox until interrupted.

With --for-task, wait until the agent is assigned a task instead, print it
and exit. Fails if --timeout passes first.

Examples:
  swarm watch bob --since=10m
  swarm watch bob --for-task --timeout=5m -o jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchForTask, "for-task", false, "Wait for a task assignment and exit")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Give up after this long with --for-task (0 = wait forever)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", watch.DefaultInterval, "Polling interval")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Also show messages after time (duration or RFC3339)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(watchOutput)
	if err != nil {
		return err
	}

	sinceMs := time.Now().UnixMilli()
	if watchSince != "" {
		if sinceMs, err = timespec.Parse(watchSince); err != nil {
			return fail(blackboard.Validation("watch", "invalid --since: %v", err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agentID := args[0]
	out := cmd.OutOrStdout()

	if watchForTask {
		task, err := watch.PollForAssignment(ctx, env.client, agentID, watchInterval, watchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fail(err)
		}
		if format == report.OutputFormatJSONL {
			return report.JSONL(out, []*blackboard.Task{task})
		}
		report.TaskDetail(out, task)
		return nil
	}

	if format == report.OutputFormatDefault {
		printer.Step("Watching mailbox of %s (Ctrl+C to stop)\n", agentID)
	}
	err = watch.FollowInbox(ctx, env.mail, agentID, sinceMs, watchInterval, func(m *blackboard.Message) error {
		if format == report.OutputFormatJSONL {
			return report.JSONL(out, []*blackboard.Message{m})
		}
		line := fmt.Sprintf("[%s] %s: %s", time.UnixMilli(m.CreatedAtMs).Format("15:04:05"), m.Sender, m.Content)
		if m.Urgency != blackboard.UrgencyNormal {
			printer.Urgent(string(m.Urgency), line)
			return nil
		}
		fmt.Fprintln(out, line)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return fail(err)
	}
	return nil
}
