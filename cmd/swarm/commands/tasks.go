package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dyluth/swarm/internal/coordinator"
	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/dyluth/swarm/internal/resolver"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	discoverSource string

	tasksStatus string
	tasksOutput string
	taskOutput  string

	completeSummary string
	completeFailed  bool
	completeRecord  bool
	completeContext string
	completeLessons []string

	tickLoop     bool
	tickInterval time.Duration
	tickOutput   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover [DESCRIPTION...]",
	Short: "Turn descriptions into open tasks",
	Long: `Create open tasks from descriptions, one per argument or, with no
arguments, one per non-empty line of stdin.

A description may carry one annotation block:
  p=N        explicit priority
  needs=a,b  specialties an agent must have
  v/u/e/r    value, urgency, effort, risk for a computed priority

Descriptions that match an existing task (ignoring case and spacing) are
skipped. If any description is invalid, nothing is created.

Examples:
  swarm discover "Fix login redirect [p=8 needs=frontend]"
  grep -h TODO -r src | swarm discover --source=todo-scan`,
	RunE: runDiscover,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks in creation order",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

var taskCmd = &cobra.Command{
	Use:   "task TASK_ID",
	Short: "Show one task (short IDs accepted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

var assignCmd = &cobra.Command{
	Use:   "assign AGENT [TASK_ID]",
	Short: "Assign a task to an idle agent",
	Long: `Assign a specific task to an agent, or with no task ID the highest
priority open task the agent qualifies for.

Two agents racing for the same task never both win: the loser gets a
"task unavailable" error (exit code 5).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAssign,
}

var completeCmd = &cobra.Command{
	Use:   "complete AGENT TASK_ID",
	Short: "Mark the agent's task complete",
	Args:  cobra.ExactArgs(2),
	RunE:  runComplete,
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Reopen tasks assigned for longer than reclaim_timeout",
	Args:  cobra.NoArgs,
	RunE:  runReclaim,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one coordination cycle (or keep running with --loop)",
	Long: `Run a coordination cycle: reclaim stalled tasks, mark silent agents
offline, then hand each idle agent its best open task.

With --loop the cycle repeats every --interval until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runTick,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverSource, "source", "", "Where the descriptions came from")

	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Only tasks with this status: open, assigned or complete")
	tasksCmd.Flags().StringVarP(&tasksOutput, "output", "o", "default", "Output format: default or jsonl")
	taskCmd.Flags().StringVarP(&taskOutput, "output", "o", "default", "Output format: default or jsonl")

	completeCmd.Flags().StringVar(&completeSummary, "summary", "", "What was done")
	completeCmd.Flags().BoolVar(&completeFailed, "failed", false, "The task did not succeed")
	completeCmd.Flags().BoolVar(&completeRecord, "record", false, "Also record a decision in the knowledge base")
	completeCmd.Flags().StringVar(&completeContext, "context", "", "Decision context (with --record)")
	completeCmd.Flags().StringArrayVar(&completeLessons, "lesson", nil, "A lesson learned (repeatable, with --record)")

	tickCmd.Flags().BoolVar(&tickLoop, "loop", false, "Repeat until interrupted")
	tickCmd.Flags().DurationVar(&tickInterval, "interval", 30*time.Second, "Time between cycles with --loop")
	tickCmd.Flags().StringVarP(&tickOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(discoverCmd, tasksCmd, taskCmd, assignCmd, completeCmd, reclaimCmd, tickCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	lines := args
	if len(lines) == 0 {
		var err error
		if lines, err = readLines(cmd.InOrStdin()); err != nil {
			return printer.Failure("failed to read stdin", err)
		}
	}
	if len(lines) == 0 {
		return fail(blackboard.Validation("discover", "no descriptions given"))
	}

	candidates := make([]coordinator.Candidate, 0, len(lines))
	for i, line := range lines {
		cand, err := coordinator.ParseCandidate(line)
		if err != nil {
			return fail(blackboard.Validation("discover", "description %d: %v", i+1, err))
		}
		cand.Source = discoverSource
		candidates = append(candidates, cand)
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	created, err := env.coord.DiscoverCandidates(ctx, candidates)
	if err != nil {
		return fail(err)
	}
	for _, t := range created {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Description)
	}
	printer.Success("Created %d task(s), %d duplicate(s) skipped\n", len(created), len(candidates)-len(created))
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(tasksOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tasks, err := env.coord.Tasks(ctx, coordinator.TaskFilter{Status: blackboard.TaskStatus(tasksStatus)})
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), tasks)
	}
	report.Tasks(cmd.OutOrStdout(), tasks)
	return nil
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(taskOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	task, err := resolveTask(ctx, env, args[0])
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.SingleJSON(cmd.OutOrStdout(), task)
	}
	report.TaskDetail(cmd.OutOrStdout(), task)
	return nil
}

func resolveTask(ctx context.Context, env *swarmEnv, id string) (*blackboard.Task, error) {
	full, err := resolver.ResolveTaskID(ctx, env.client, id)
	if err != nil {
		return nil, err
	}
	return env.coord.Task(ctx, full)
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agentID := args[0]
	if len(args) == 1 {
		task, err := env.coord.AssignBest(ctx, agentID)
		if err != nil {
			return fail(err)
		}
		if task == nil {
			printer.Muted("No open task that %s qualifies for\n", agentID)
			return nil
		}
		printer.Success("Assigned %s to %s: %s\n", task.ID, agentID, task.Description)
		return nil
	}

	taskID, err := resolver.ResolveTaskID(ctx, env.client, args[1])
	if err != nil {
		var nf *resolver.NotFoundError
		if errors.As(err, &nf) {
			return fail(blackboard.TaskUnavailable("assign_task", args[1], "no such task"))
		}
		return fail(err)
	}
	task, err := env.coord.AssignTask(ctx, agentID, taskID)
	if err != nil {
		return fail(err)
	}
	printer.Success("Assigned %s to %s: %s\n", task.ID, agentID, task.Description)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agentID := args[0]
	taskID, err := resolver.ResolveTaskID(ctx, env.client, args[1])
	if err != nil {
		var nf *resolver.NotFoundError
		if errors.As(err, &nf) {
			return fail(blackboard.TaskUnavailable("complete_task", args[1], "no such task"))
		}
		return fail(err)
	}

	task, err := env.coord.CompleteTask(ctx, agentID, taskID, coordinator.Outcome{
		Summary: completeSummary,
		Success: !completeFailed,
		Record:  completeRecord,
		Context: completeContext,
		Lessons: completeLessons,
	})
	if err != nil {
		return fail(err)
	}
	if task.Success {
		printer.Success("Completed %s\n", task.ID)
	} else {
		printer.Warning("Completed %s (unsuccessful)\n", task.ID)
	}
	return nil
}

func runReclaim(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	reclaimed, err := env.coord.ReclaimStalled(ctx)
	if err != nil {
		return fail(err)
	}
	for _, t := range reclaimed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Description)
	}
	printer.Success("Reclaimed %d task(s)\n", len(reclaimed))
	return nil
}

func runTick(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(tickOutput)
	if err != nil {
		return err
	}
	if tickLoop && tickInterval <= 0 {
		return fail(blackboard.Validation("tick", "--interval must be positive"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	for {
		tick, err := env.coord.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fail(err)
		}
		if format == report.OutputFormatJSONL {
			if err := report.JSONL(cmd.OutOrStdout(), []*coordinator.TickReport{tick}); err != nil {
				return err
			}
		} else {
			printTick(cmd.OutOrStdout(), tick)
		}

		if !tickLoop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tickInterval):
		}
	}
}

func printTick(w io.Writer, tick *coordinator.TickReport) {
	for _, t := range tick.Reclaimed {
		fmt.Fprintf(w, "reclaimed  %s  %s\n", t.ID, t.Description)
	}
	for _, id := range tick.Offline {
		fmt.Fprintf(w, "offline    %s\n", id)
	}
	for _, a := range tick.Assignments {
		fmt.Fprintf(w, "assigned   %s -> %s\n", a.TaskID, a.AgentID)
	}
	fmt.Fprintf(w, "tick: %d reclaimed, %d offline, %d assigned\n",
		len(tick.Reclaimed), len(tick.Offline), len(tick.Assignments))
}
