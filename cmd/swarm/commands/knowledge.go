package commands

import (
	"context"
	"strings"

	"github.com/dyluth/swarm/internal/knowledge"
	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	shareCategory string
	shareTags     []string

	decideContext string
	decideOutcome string
	decideFailed  bool
	decideLessons []string
	decideTask    string

	decisionsAuthor string
	decisionsLimit  int
	decisionsOutput string

	searchCategory string
	searchLimit    int
	searchOutput   string

	noteKind    string
	notesOutput string
	statsOutput string
)

var shareCmd = &cobra.Command{
	Use:   "share AUTHOR TITLE BODY...",
	Short: "Share a learning with every agent",
	Long: `Add a learning to the shared knowledge base.

Categories: general, debugging, architecture, tooling, process, security,
performance, testing.

Examples:
  swarm share alice "Redis WATCH gotcha" "WATCH is cleared by EXEC, re-watch on retry" --category=debugging --tags=redis,tx`,
	Args: cobra.MinimumNArgs(3),
	RunE: runShare,
}

var decideCmd = &cobra.Command{
	Use:   "decide AUTHOR DECISION...",
	Short: "Record a decision and how it turned out",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDecide,
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recorded decisions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDecisions,
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search shared learnings",
	Long: `Search learnings by title, body and tags. Results are ranked by how often
the query occurs, then by recency.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var noteCmd = &cobra.Command{
	Use:   "note AGENT CONTENT...",
	Short: "Append a private note for an agent",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runNote,
}

var notesCmd = &cobra.Command{
	Use:   "notes AGENT",
	Short: "List an agent's private notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotes,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the knowledge base",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	shareCmd.Flags().StringVar(&shareCategory, "category", string(blackboard.CategoryGeneral), "Learning category")
	shareCmd.Flags().StringSliceVar(&shareTags, "tags", nil, "Comma-separated tags")

	decideCmd.Flags().StringVar(&decideContext, "context", "", "What prompted the decision")
	decideCmd.Flags().StringVar(&decideOutcome, "outcome", "", "What happened")
	decideCmd.Flags().BoolVar(&decideFailed, "failed", false, "The decision did not work out")
	decideCmd.Flags().StringArrayVar(&decideLessons, "lesson", nil, "A lesson learned (repeatable)")
	decideCmd.Flags().StringVar(&decideTask, "task", "", "Related task ID")

	decisionsCmd.Flags().StringVar(&decisionsAuthor, "author", "", "Only decisions by this agent")
	decisionsCmd.Flags().IntVar(&decisionsLimit, "limit", 0, "Maximum decisions to show (0 = all)")
	decisionsCmd.Flags().StringVarP(&decisionsOutput, "output", "o", "default", "Output format: default or jsonl")

	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Only this category")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (0 = all)")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "default", "Output format: default or jsonl")

	noteCmd.Flags().StringVar(&noteKind, "kind", "note", "Free-form note kind, e.g. todo")
	notesCmd.Flags().StringVarP(&notesOutput, "output", "o", "default", "Output format: default or jsonl")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(shareCmd, decideCmd, decisionsCmd, searchCmd, noteCmd, notesCmd, statsCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.store.ShareLearning(ctx, knowledge.Learning{
		Author:   args[0],
		Category: blackboard.Category(shareCategory),
		Title:    args[1],
		Body:     strings.Join(args[2:], " "),
		Tags:     shareTags,
	})
	if err != nil {
		return fail(err)
	}
	printer.Success("Shared learning %s\n", id)
	return nil
}

func runDecide(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.store.RecordDecision(ctx, knowledge.Decision{
		Author:   args[0],
		Decision: strings.Join(args[1:], " "),
		Context:  decideContext,
		Outcome:  decideOutcome,
		Success:  !decideFailed,
		Lessons:  decideLessons,
		TaskID:   decideTask,
	})
	if err != nil {
		return fail(err)
	}
	printer.Success("Recorded decision %s\n", id)
	return nil
}

func runDecisions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(decisionsOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	records, err := env.store.Decisions(ctx, knowledge.DecisionFilter{Author: decisionsAuthor, Limit: decisionsLimit})
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), records)
	}
	report.Decisions(cmd.OutOrStdout(), records)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(searchOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	query := strings.Join(args, " ")
	matches, err := env.store.Search(ctx, query, knowledge.SearchOptions{
		Category: blackboard.Category(searchCategory),
		Limit:    searchLimit,
	})
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), matches)
	}
	report.Matches(cmd.OutOrStdout(), matches, query)
	return nil
}

func runNote(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.store.AddNote(ctx, args[0], noteKind, strings.Join(args[1:], " "))
	if err != nil {
		return fail(err)
	}
	printer.Success("Saved note %s\n", id)
	return nil
}

func runNotes(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(notesOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	notes, err := env.store.Notes(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), notes)
	}
	report.Notes(cmd.OutOrStdout(), notes, args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(statsOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	stats, err := env.store.Stats(ctx)
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), []*knowledge.Stats{stats})
	}
	report.Stats(cmd.OutOrStdout(), stats)
	return nil
}
