package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/winson8942-oss/line-drive-bot/cmd/linedrive/modules"
	"github.com/winson8942-oss/line-drive-bot/internal/auth"
)

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := modules.LoadConfig(modules.ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AdminAPI.TokenTTL.Duration
			}
			token, expiresAt, err := auth.GenerateToken(subject, cfg.AdminAPI.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject recorded in audit logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to admin_api.token_ttl)")
	return cmd
}
