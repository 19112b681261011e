package commands

import (
	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter swarm.yml",
	Long: `Write a commented swarm.yml with the default settings to the --config path.

Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -c shorthand because it is the global --config flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(configPath, forceInit); err != nil {
		return printer.Failure("initialization failed", err)
	}
	scaffold.PrintSuccess(configPath)
	return nil
}
