// Package cli implements the invitation-server command line: the HTTP
// server, one-shot outbox flushes, store maintenance and guest seeding.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/wedding-invite-backend/internal/config"
	"github.com/tbourn/wedding-invite-backend/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile    string
	LogLevel   string
	Pretty     bool
	LocalStore string
	Format     string // "json" | "text"

	cfg config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "text"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "invitation-server",
		Short:         "Wedding invitation backend",
		Long:          "Serves guest invitations from an offline cache and syncs queued RSVPs to the remote store.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (trace|debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console logs")
	cmd.PersistentFlags().StringVar(&opts.LocalStore, "local-store", "", "local store URL override (sqlite://path | kvdb://path)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// load reads the dotenv file and the environment, applies flag overrides
// and installs the global logger. A missing default .env is not an error.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.EnvFile != "" {
		err := godotenv.Load(o.EnvFile)
		if err != nil && (cmd.Flags().Changed("env-file") || !errors.Is(err, fs.ErrNotExist)) {
			return WrapExitError(ExitCommandError, "load env file", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	cfg.LogLevel = sysutil.FirstNonEmpty(o.LogLevel, cfg.LogLevel)
	cfg.LocalStoreURL = sysutil.FirstNonEmpty(o.LocalStore, cfg.LocalStoreURL)
	if o.Pretty {
		cfg.LogPretty = true
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	o.cfg = cfg

	sysutil.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogPretty)
	log.Debug().Str("command", cmd.Name()).Str("local_store", cfg.LocalStoreURL).Msg("configuration loaded")
	return nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
