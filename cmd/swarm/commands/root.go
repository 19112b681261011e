package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/swarm/internal/config"
	"github.com/dyluth/swarm/internal/coordinator"
	"github.com/dyluth/swarm/internal/knowledge"
	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/internal/mailbox"
	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// Global flags
var (
	configPath   string
	redisURL     string
	instanceName string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Swarm - shared coordination store for autonomous agents",
	Long: `Swarm lets independently running agents coordinate through a shared
Redis-backed blackboard: mailboxes for direct and broadcast messages, a
knowledge base of learnings and decisions, and a task coordinator that hands
discovered work to idle agents without ever double-assigning it.

Configuration is read from swarm.yml (see --config) and SWARM_* environment
variables.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to swarm.yml")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (overrides storage_location)")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "instance", "n", "", "Instance name (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log coordination events to stderr")
}

// swarmEnv bundles the components a command works with.
type swarmEnv struct {
	cfg    *config.SwarmConfig
	client *blackboard.Client
	log    *logrus.Entry
	mail   *mailbox.Queue
	store  *knowledge.Store
	coord  *coordinator.Coordinator
}

// openSwarm loads configuration, applies flag overrides and connects.
func openSwarm(ctx context.Context) (*swarmEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Failure("invalid configuration", blackboard.Validation("config", "%v", err),
			fmt.Sprintf("Fix %s or the SWARM_* environment variables", configPath))
	}
	if redisURL != "" {
		cfg.StorageLocation = redisURL
	}
	if instanceName != "" {
		cfg.Instance = instanceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, printer.Failure("invalid configuration", blackboard.Validation("config", "%v", err))
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, printer.Failure("invalid configuration", blackboard.Validation("config", "%v", err))
	}
	client, err := blackboard.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, printer.Failure("invalid configuration", blackboard.Validation("config", "%v", err))
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.Failure("storage unavailable", blackboard.Storage("connect", err),
			fmt.Sprintf("Check that Redis is reachable at %s", cfg.StorageLocation))
	}

	log := logging.New("cli", cfg.Instance)
	if !verbose {
		log.Logger.SetLevel(logrus.WarnLevel)
	}

	mail := mailbox.New(client, mailbox.Options{
		ValidateRecipients: cfg.ValidateRecipients,
		Logger:             log.WithField("component", "mailbox"),
	})
	store := knowledge.New(client, knowledge.Options{
		Logger: log.WithField("component", "knowledge"),
	})
	coord := coordinator.New(client, coordinator.Options{
		Specialties:    cfg.Specialties,
		BusyTimeout:    cfg.BusyTimeout,
		ReclaimTimeout: cfg.ReclaimTimeout,
		OfflineAfter:   cfg.OfflineAfter,
		Notifier:       mail,
		Recorder:       store,
		Logger:         log.WithField("component", "coordinator"),
	})

	return &swarmEnv{
		cfg:    cfg,
		client: client,
		log:    log,
		mail:   mail,
		store:  store,
		coord:  coord,
	}, nil
}

func (e *swarmEnv) Close() {
	e.client.Close()
}
