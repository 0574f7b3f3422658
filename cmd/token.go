package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/calcutta/console/internal/config"
	models "github.com/calcutta/console/internal/models/users"
	services "github.com/calcutta/console/internal/service/auth"
)

var (
	tokenUserID int64
	tokenEmail  string
	tokenPerms  []string
	tokenTTL    time.Duration
)

// tokenCmd mints a session token for local development
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a development session token with JWT_SECRET",
	Long: `Signs a token the console accepts, for running against a local API.
Permissions given with --perm are embedded so the console does not ask the
API for them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Production() {
			return fmt.Errorf("refusing to mint tokens with APP_ENV=production")
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		user := models.User{UserID: tokenUserID, Email: tokenEmail}
		if cmd.Flags().Changed("perm") {
			user.Permissions = tokenPerms
		}
		token, err := services.NewAuthService(cfg.JWTSecret, false).GenerateJWT(user, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 1, "user ID claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "dev@example.com", "email claim")
	tokenCmd.Flags().StringSliceVar(&tokenPerms, "perm", nil, "permission to embed (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
