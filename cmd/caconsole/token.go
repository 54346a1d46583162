package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockadesystems/caconsole/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP console",
	Long: `Mint a bearer token for the HTTP console.

The token is signed with token_secret from the configuration, which must be
the same secret the console daemon runs with.

Roles:
  issuer   create and import CAs, issue certificates
  revoker  revoke and unrevoke certificates
  admin    everything, plus the journal

Example:
  caconsole token --subject alice --role issuer --role revoker`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject, recorded as the journal actor")
	tokenCmd.Flags().StringArrayVar(&tokenRoles, "role", nil, "Granted role (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default token_ttl)")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.TokenSecret == "" {
		return errors.New("token_secret is not configured")
	}
	for _, r := range tokenRoles {
		switch r {
		case auth.RoleIssuer, auth.RoleRevoker, auth.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", r)
		}
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}

	issuer, err := auth.NewIssuer([]byte(cfg.TokenSecret), ttl)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(tokenSubject, tokenRoles)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
