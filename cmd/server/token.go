package main

import (
	"fmt"

	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for an email (local testing)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL).Issue(email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "identity to put in the token")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
