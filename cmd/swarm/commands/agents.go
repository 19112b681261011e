package commands

import (
	"context"
	"strings"

	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/spf13/cobra"
)

var (
	registerSpecialties []string
	rollcallOutput      string
	idleOutput          string
)

var registerCmd = &cobra.Command{
	Use:   "register AGENT",
	Short: "Register an agent and its specialties",
	Long: `Register an agent, or update its self-declared specialties.

Specialties configured in swarm.yml take precedence when matching tasks.

Examples:
  swarm register carol --specialties=backend,go`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat AGENT",
	Short: "Report that an agent is alive",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeat,
}

var rollcallCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "List every known agent and its status",
	Long: `Declare the agents configured in swarm.yml and list all known agents.

Declared agents that have never been seen show "never" as their last activity.`,
	Args: cobra.NoArgs,
	RunE: runRollcall,
}

var idleCmd = &cobra.Command{
	Use:   "idle",
	Short: "List agents ready for work",
	Args:  cobra.NoArgs,
	RunE:  runIdle,
}

func init() {
	registerCmd.Flags().StringSliceVar(&registerSpecialties, "specialties", nil, "Comma-separated specialties")
	rollcallCmd.Flags().StringVarP(&rollcallOutput, "output", "o", "default", "Output format: default or jsonl")
	idleCmd.Flags().StringVarP(&idleOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(registerCmd, heartbeatCmd, rollcallCmd, idleCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agent, err := env.coord.RegisterAgent(ctx, args[0], registerSpecialties)
	if err != nil {
		return fail(err)
	}
	skills := strings.Join(agent.Specialties, ", ")
	if skills == "" {
		skills = "none"
	}
	printer.Success("Registered %s (specialties: %s)\n", agent.ID, skills)
	return nil
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agent, err := env.coord.Heartbeat(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	printer.Success("%s is %s\n", agent.ID, agent.Status)
	return nil
}

func runRollcall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(rollcallOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agents, err := env.coord.RollCall(ctx)
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), agents)
	}
	report.Agents(cmd.OutOrStdout(), agents)
	return nil
}

func runIdle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := parseOutput(idleOutput)
	if err != nil {
		return err
	}

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	agents, err := env.coord.IdleAgents(ctx)
	if err != nil {
		return fail(err)
	}
	if format == report.OutputFormatJSONL {
		return report.JSONL(cmd.OutOrStdout(), agents)
	}
	report.Agents(cmd.OutOrStdout(), agents)
	return nil
}
