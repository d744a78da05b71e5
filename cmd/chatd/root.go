package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	applog "github.com/AxelCastilloZ/BomberosNosara-sub000/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chatd",
		Short:         "Intranet real-time messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default ./config.yaml or $CHAT_CONFIG_DEFAULT_PATH/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: console or json")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newUserCmd(opts),
	)
	return cmd
}

// load resolves configuration and builds the logger it asks for.
// Flag overrides win over file and environment.
func (o *rootOptions) load(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	overrides.LogLevel = o.logLevel
	overrides.LogFormat = o.logFormat
	cfg.UpdateFrom(overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}
