package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/relay"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
)

var relayHealthAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward broadcasts to Slack, Kafka and RabbitMQ",
	Long: `Subscribe to the instance's broadcasts and forward each one to the
configured external sinks until interrupted.

Sinks are configured under relay: in swarm.yml or with SWARM_RELAY_*
environment variables. Slack needs slack_bot_token and slack_channel;
Kafka needs kafka_brokers; RabbitMQ needs amqp_url. A /healthz endpoint
reports Redis connectivity.

Mailbox delivery never depends on the relay: a sink that fails is logged
and skipped.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&relayHealthAddr, "health-addr", "", "Health check listen address (overrides relay.health_addr)")
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := openSwarm(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	sinks, err := relay.SinksFromConfig(env.cfg.Relay, &http.Client{Timeout: relay.DefaultSendTimeout})
	if err != nil {
		return fail(blackboard.Validation("relay", "%v", err))
	}
	if len(sinks) == 0 {
		return printer.Failure("no relay sinks configured", blackboard.Validation("relay", "no sinks enabled"),
			"Set relay.slack_bot_token and relay.slack_channel, relay.kafka_brokers or relay.amqp_url in swarm.yml")
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}

	log := env.log.WithField("component", "relay")
	r := relay.New(env.client, sinks, relay.Options{Logger: log})
	defer r.Close()

	addr := env.cfg.Relay.HealthAddr
	if relayHealthAddr != "" {
		addr = relayHealthAddr
	}
	health := relay.NewHealthServer(env.client, names, log)
	if err := health.Start(addr); err != nil {
		return printer.Failure("failed to start health server", err, "Choose another address with --health-addr")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		health.Shutdown(shutdownCtx)
	}()

	printer.Step("Relaying broadcasts for instance %s to %v (health on %s)\n", env.cfg.Instance, names, addr)
	if err := r.Run(ctx); err != nil {
		return fail(err)
	}
	printer.Info("Relay stopped\n")
	return nil
}
