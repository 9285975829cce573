package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/npl-provision/api"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator bearer token for the API",
		Long: `Token signs an HS256 token with auth.jwt_secret. Send it as
"Authorization: Bearer <token>" to run periods, store rule books or set
RECRATE over the API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := api.IssueToken(cfg.Auth.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject, recorded on runs as api:<subject>")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
