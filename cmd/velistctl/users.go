package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User account commands",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersCreateAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a password account with the admin role",
	Args:  cobra.NoArgs,
	RunE:  runUsersCreateAdmin,
}

func init() {
	usersListCmd.Flags().Int("limit", 50, "maximum number of users to show")
	usersListCmd.Flags().Int("offset", 0, "number of users to skip")

	usersCreateAdminCmd.Flags().String("email", "", "email address (required)")
	usersCreateAdminCmd.Flags().String("name", "Admin", "display name")
	usersCreateAdminCmd.Flags().String("password", "", "password (required)")
	_ = usersCreateAdminCmd.MarkFlagRequired("email")
	_ = usersCreateAdminCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateAdminCmd)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	return withApp(cmd.Context(), func(a *app) error {
		users, err := a.users.List(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
		total, err := a.users.Count(cmd.Context())
		if err != nil {
			return err
		}

		writeUserTable(cmd.OutOrStdout(), users)
		printInfo(cmd.OutOrStdout(), "%d of %d users", len(users), total)
		return nil
	})
}

func runUsersCreateAdmin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")

	return withApp(cmd.Context(), func(a *app) error {
		user, err := a.credentials.CreateAdmin(cmd.Context(), services.RegisterInput{
			Email:                email,
			Name:                 name,
			Password:             password,
			PasswordConfirmation: password,
		})
		if err != nil {
			var fieldErr *models.FieldError
			if errors.As(err, &fieldErr) {
				return fmt.Errorf("%s: %s", fieldErr.Field, fieldErr.Message)
			}
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Created admin %s (%s)", user.Email, user.ID)
		return nil
	})
}
