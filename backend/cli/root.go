// Package cli implements the cinefm command line.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cinefm/backend"
	"cinefm/backend/internal/config"
	"cinefm/backend/internal/logging"
)

// Version is set at build time.
var Version = "0.0.0"

type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cinefm",
		Short: "Dual-panel file manager server",
		Long: `cinefm serves two file panels over a WebSocket event channel.
Items can be copied between the panels with rsync, or fetched from
ftp/sftp endpoints that mirror a source folder.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path of the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newLsCmd(opts),
		newCpCmd(opts),
		newPasswdCmd(opts),
	)
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

// load 读取配置；只有显式传入 --config 时文件才是必需的
func (o *rootOptions) load(cmd *cobra.Command, overrides config.Overrides) (config.Config, zerolog.Logger, error) {
	required := cmd.Flags().Changed("config")
	cfg, warn, err := backend.LoadConfig(o.configPath, required, overrides)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	logger, _, err := logging.New(logging.Options{Debug: o.debug})
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if warn != nil {
		logger.Debug().Err(warn).Msg("config file unusable, using defaults")
	}
	return cfg, logger, nil
}
