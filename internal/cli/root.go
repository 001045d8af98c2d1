// Package cli builds the oxm command tree.
package cli

import (
	"github.com/leandroluk/oxm/config"
	"github.com/leandroluk/oxm/core"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// state is shared by the commands of one invocation.
type state struct {
	configPath string
	logLevel   string
	cfg        config.Config
	logger     zerolog.Logger
}

// NewRootCommand returns the oxm command.
func NewRootCommand() *cobra.Command {
	st := &state{logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "oxm",
		Short:         "Inspect and serve the oxm document mapper",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			if st.logLevel != "" {
				cfg.LogLevel = st.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			st.cfg = cfg
			st.logger = cfg.Logger()
			core.SetLogger(st.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "Path to a yaml or toml config file")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides OXM_LOG_LEVEL)")

	root.AddCommand(newEventsCommand(), newMappingCommand(st), newServeCommand(st))
	return root
}
