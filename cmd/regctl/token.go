package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/homeconf/regbot/config"
	"github.com/homeconf/regbot/internal/auth"
)

var tokenUserID int64

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Issue a dashboard token for an admin",
	Args:  cobra.NoArgs,
	RunE:  runAdminToken,
}

func init() {
	adminTokenCmd.Flags().Int64Var(&tokenUserID, "user", 0, "Telegram user id of the admin")
	_ = adminTokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(adminTokenCmd)
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !slices.Contains(cfg.Bot.AdminIDs, tokenUserID) {
		return fmt.Errorf("user %d is not in ADMIN_IDS", tokenUserID)
	}
	token, exp, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(tokenUserID, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
	return nil
}
