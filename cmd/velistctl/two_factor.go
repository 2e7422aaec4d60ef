package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/velist/velist/internal/models"
)

var twoFactorCmd = &cobra.Command{
	Use:   "2fa",
	Short: "Two-factor authentication commands",
}

var twoFactorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the two-factor state of an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		return withApp(cmd.Context(), func(a *app) error {
			user, err := findUser(cmd.Context(), a, email)
			if err != nil {
				return err
			}
			status, err := a.twoFactor.Status(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			writeTwoFactorStatus(cmd.OutOrStdout(), user, status)
			return nil
		})
	},
}

var twoFactorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Disable two-factor authentication and end every session of an account",
	Long: "Clears the TOTP secret and all backup codes of the account, then revokes its sessions. " +
		"Use when a user has lost both their authenticator and their backup codes.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		return withApp(cmd.Context(), func(a *app) error {
			user, err := findUser(cmd.Context(), a, email)
			if err != nil {
				return err
			}
			if user.TwoFactorState() == models.TwoFactorDisabled {
				printWarning(cmd.OutOrStdout(), "Two-factor authentication is not enabled for %s", user.Email)
				return nil
			}
			if err := a.twoFactor.Disable(cmd.Context(), user.ID); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Two-factor authentication reset for %s", user.Email)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{twoFactorStatusCmd, twoFactorResetCmd} {
		c.Flags().String("email", "", "account email (required)")
		_ = c.MarkFlagRequired("email")
		twoFactorCmd.AddCommand(c)
	}
}

func findUser(ctx context.Context, a *app, email string) (*models.User, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("no user with email %s", email)
	}
	return user, err
}
