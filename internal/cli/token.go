package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncq/internal/httpapi"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	User string
	TTL  time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Long: `Mint an HS256 bearer token for a user, signed with http.jwtSecret.

Example:
  syncq token --user user-1 --ttl 1h --config syncq.cue
  curl -H "Authorization: Bearer $(syncq token --user user-1)" localhost:8080/v1/sync/status`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id carried in the sub claim (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	if opts.TTL <= 0 {
		return NewExitError(ExitCommandError, "--ttl must be positive")
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	secret := cfg.HTTP.JWTSecret
	if secret == "" {
		secret = httpapi.DevSecret
	}

	token, err := httpapi.MintToken(secret, opts.User, opts.TTL, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to mint token", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	return out.Success(map[string]string{"token": token, "userId": opts.User}, token)
}

