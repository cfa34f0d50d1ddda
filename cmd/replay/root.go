package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/replay/internal/observability"
	"github.com/rahul/replay/pkg/config"
)

// cli carries what the subcommands share once the root has loaded it.
type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds a fresh command tree, so flags never leak between
// executions.
func NewRootCommand() *cobra.Command {
	a := &cli{}
	root := &cobra.Command{
		Use:   "replay",
		Short: "Turn recorded browsing sessions into replayable, self-healing workflows.",
		Long: `replay converts the action trace of an autonomous browsing session into a
versioned workflow definition and replays it deterministically, healing
steps whose targets no longer match the page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "replay"})
				return err
			}
			a.cfg = cfg
			observability.InitializeLogger(cfg.Logger)
			a.logger = observability.GetLogger()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml or json)")

	root.AddCommand(newConvertCommand(a), newRunCommand(a))
	return root
}
