package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/syncq/internal/config"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/service"
	"github.com/roach88/syncq/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a CUE config file
	DB      string // store DSN, overrides the config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the syncq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "syncq",
		Short:   "syncq - offline mutation queue",
		Version: ir.ServiceVersion,
		Long: `syncq queues mutations recorded by offline clients and applies them
to the backing store with bounded retries.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to CUE config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "store DSN (sqlite://path, postgres://..., memory://)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads --config and applies --db and --verbose over it.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Store.DSN = opts.DB
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// runtime is an opened store and the service over it.
type runtime struct {
	cfg    config.Config
	store  store.Adapter
	svc    *service.Service
	logger *slog.Logger
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Error("error closing store", "error", err)
	}
}

// openRuntime loads configuration, configures logging on the command's
// stderr and opens the store.
func openRuntime(opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := slog.New(cfg.Log.Handler(cmd.ErrOrStderr(), cfg.Log.SlogLevel()))
	slog.SetDefault(logger)

	logger.Debug("opening store", "dsn", cfg.Store.DSN)
	st, err := store.OpenDSN(cfg.Store.DSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	svcOpts := cfg.ServiceOptions()
	svcOpts.Logger = logger
	svc, err := service.New(st, svcOpts)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build service", err)
	}
	return &runtime{cfg: cfg, store: st, svc: svc, logger: logger}, nil
}
