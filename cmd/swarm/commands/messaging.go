package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/swarm/internal/filter"
	"github.com/dyluth/swarm/internal/mailbox"
	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/dyluth/swarm/internal/timespec"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	sendUrgency      string
	broadcastUrgency string

	inboxUnread    bool
	inboxSince     string
	inboxUntil     string
	inboxFrom      string
	inboxKind      string
	inboxLimit     int
	inboxByUrgency bool
	inboxOutput    string
	inboxMarkRead  bool
)

var sendCmd = &cobra.Command{
	Use:   "send SENDER RECIPIENT MESSAGE...",
	Short: "Send a direct message to one agent",
	Long: `Send a direct message from one agent to another.

Both agents are created on first contact unless validate_recipients is set,
in which case the recipient must already exist.

Examples:
  swarm send alice bob "schema migration is done"
  swarm send alice bob --urgency=urgent "prod deploy is blocked"`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSend,
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast SENDER MESSAGE...",
	Short: "Send a message to every other known agent",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runBroadcast,
}

var inboxCmd = &cobra.Command{
	Use:   "inbox AGENT",
	Short: "List an agent's messages in delivery order",
	Long: `List messages delivered to an agent, oldest first.

Listing counts as activity for the agent.

Examples:
  swarm inbox bob --unread
  swarm inbox bob --from=swarm --kind=task
  swarm inbox bob --since=1h --output=jsonl | jq .content`,
	Args: cobra.ExactArgs(1),
	RunE: runInbox,
}

var readCmd = &cobra.Command{
	Use:   "read AGENT MESSAGE_ID...",
	Short: "Mark messages as read",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRead,
}

var unreadCmd = &cobra.Command{
	Use:   "unread AGENT",
	Short: "Print how many unread messages an agent has",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnread,
}

func init() {
	sendCmd.Flags().StringVarP(&sendUrgency, "urgency", "u", string(blackboard.UrgencyNormal), "normal, urgent or emergency")
	broadcastCmd.Flags().StringVarP(&broadcastUrgency, "urgency", "u", string(blackboard.UrgencyNormal), "normal, urgent or emergency")

	inboxCmd.Flags().BoolVar(&inboxUnread, "unread", false, "Only unread messages")
	inboxCmd.Flags().StringVar(&inboxSince, "since", "", "Only messages after time (duration or RFC3339)")
	inboxCmd.Flags().StringVar(&inboxUntil, "until", "", "Only messages before time (duration or RFC3339)")
	inboxCmd.Flags().StringVar(&inboxFrom, "from", "", "Only messages from this sender")
	inboxCmd.Flags().StringVar(&inboxKind, "kind", "", "Only messages whose kind matches this glob (direct, broadcast, task, system)")
	inboxCmd.Flags().IntVar(&inboxLimit, "limit", 0, "Maximum messages to show (0 = all)")
	inboxCmd.Flags().BoolVar(&inboxByUrgency, "by-urgency", false, "Show emergencies first")
	inboxCmd.Flags().BoolVar(&inboxMarkRead, "mark-read", false, "Mark the listed messages as read")
	inboxCmd.Flags().StringVarP(&inboxOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(sendCmd, broadcastCmd, inboxCmd, readCmd, unreadCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.mail.Send(ctx, args[0], args[1], strings.Join(args[2:], " "), blackboard.Urgency(sendUrgency))
	if err != nil {
		return fail(err)
	}
	printer.Success("Sent %s to %s\n", id, args[1])
	return nil
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.mail.Broadcast(ctx, args[0], strings.Join(args[1:], " "), blackboard.Urgency(broadcastUrgency))
	if result == nil {
		return fail(err)
	}

	recipients := result.Recipients()
	if len(recipients) == 0 && len(result.Failed) == 0 {
		printer.Warning("No other agents to broadcast to\n")
	} else {
		printer.Success("Broadcast %s delivered to %d agent(s): %s\n",
			result.CorrelationID, len(recipients), strings.Join(recipients, ", "))
	}
	for agent, ferr := range result.Failed {
		printer.Warning("Delivery to %s failed: %v\n", agent, ferr)
	}
	if err != nil {
		return fail(err)
	}
	return nil
}

func runInbox(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := parseOutput(inboxOutput)
	if err != nil {
		return err
	}
	sinceMs, untilMs, err := timespec.ParseRange(inboxSince, inboxUntil)
	if err != nil {
		return fail(blackboard.Validation("inbox", "%v", err))
	}
	criteria := &filter.Criteria{
		UntilTimestampMs: untilMs,
		KindGlob:         inboxKind,
		Sender:           inboxFrom,
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	// Filtering happens client side, so the limit is applied afterwards.
	limit := inboxLimit
	if criteria.HasFilters() {
		limit = 0
	}
	messages, err := env.mail.Listen(ctx, args[0], mailbox.ListenOptions{
		UnreadOnly: inboxUnread,
		SinceMs:    sinceMs,
		Limit:      limit,
	})
	if err != nil {
		return fail(err)
	}
	messages = criteria.Apply(messages)
	if inboxLimit > 0 && len(messages) > inboxLimit {
		messages = messages[:inboxLimit]
	}
	if inboxByUrgency {
		mailbox.SortByUrgency(messages)
	}

	out := cmd.OutOrStdout()
	if format == report.OutputFormatJSONL {
		if err := report.JSONL(out, messages); err != nil {
			return err
		}
	} else {
		report.Messages(out, messages, args[0])
	}

	if inboxMarkRead {
		for _, m := range messages {
			if err := env.mail.MarkRead(ctx, m.ID, args[0]); err != nil {
				return fail(err)
			}
		}
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, id := range args[1:] {
		if err := env.mail.MarkRead(ctx, id, args[0]); err != nil {
			return fail(err)
		}
	}
	printer.Success("Marked %d message(s) read\n", len(args)-1)
	return nil
}

func runUnread(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.mail.UnreadCount(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
