package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
)

var (
	tokenOwner  string
	tokenSecret string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Sign an HS256 token carrying the given owner as its userId claim.

The secret defaults to JWT_SECRET from the config. Tokens minted here are
meant for local testing only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			secret = cfg.JWTSecret
		}
		if secret == "" {
			return errors.New("no signing secret: pass --secret or set JWT_SECRET")
		}

		token, err := auth.Sign(secret, tokenOwner, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret (defaults to JWT_SECRET)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(tokenCmd)
}
