package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eventcertificates/config"
	"eventcertificates/internal/adapters/auth"
	"eventcertificates/internal/domain"
)

// TokenCmd mints a bearer token for the HTTP API. It needs JWT_SECRET but no database.
func TokenCmd() *cobra.Command {
	var (
		subject string
		email   string
		roles   []string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := mintToken(auth.NewJWTIssuer(cfg.JWTSecret), subject, email, roles, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (user ID)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringSliceVar(&roles, "role", []string{domain.RoleOperator}, "Roles to grant (repeatable)")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func mintToken(issuer domain.TokenIssuer, subject, email string, roles []string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		return "", fmt.Errorf("expiry must be positive, got %s", expiry)
	}
	token, err := issuer.Issue(subject, email, roles, expiry)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
