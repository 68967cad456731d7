package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gpdb/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var f envFlags
	var user, secret string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			if secret == "" {
				cfg, err := f.load()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			if secret == "" {
				return errors.New("no signing secret: set --secret or JWT_SECRET")
			}
			tok, err := auth.NewJWT(secret, ttl).Generate(user, roles...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&user, "user", "", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted to the subject (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default from configuration)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
