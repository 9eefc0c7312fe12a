package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts and report credits",
	}
	cmd.AddCommand(a.usersCreateCmd(), a.usersCreditsCmd(), a.usersListCmd(), a.usersReportsCmd())
	return cmd
}

func (a *app) usersCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			credits, _ := cmd.Flags().GetInt("credits")

			if credits < 0 {
				return common.NewUserError("Credits cannot be negative.", common.ErrBadRequest)
			}
			if id == "" {
				id = uuid.NewString()
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user := &model.User{
				ID:        id,
				Name:      name,
				Email:     email,
				Credits:   credits,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Created user %s with %d credits", user.ID, user.Credits)))
			return nil
		},
	}
	cmd.Flags().String("id", "", "user ID (default: random UUID)")
	cmd.Flags().String("name", "", "display name printed on reports (required)")
	cmd.Flags().String("email", "", "email printed on reports (required)")
	cmd.Flags().Int("credits", 0, "initial report credits")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) usersCreditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credits <user-id> <amount>",
		Short: "Add report credits to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amount, err := strconv.Atoi(args[1])
			if err != nil || amount <= 0 {
				return common.NewUserError("Amount must be a positive whole number.", common.ErrBadRequest)
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			balance, err := store.AddCredits(ctx, args[0], amount)
			if err != nil {
				return fmt.Errorf("failed to add credits: %w", err)
			}

			cmd.Println(cli.FormatSuccess(fmt.Sprintf("%s now has %d credits", args[0], balance)))
			return nil
		},
	}
}

func (a *app) usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			users, err := store.ListUsers(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			cmd.Println(cli.RenderUsers(users))
			return nil
		},
	}
}

func (a *app) usersReportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports <user-id>",
		Short: "List the reports issued to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.ListVerifications(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}
			if len(records) == 0 {
				cmd.Println(cli.FormatInfo("No reports issued yet"))
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.VerificationCode,
					rec.VerificationHash,
					rec.CreatedAt.Format("Jan 2, 2006"),
					rec.ExpiresAt.Format("Jan 2, 2006"),
					string(rec.StatusAt(now)),
					strconv.Itoa(rec.VerificationCount),
				})
			}
			cmd.Println(cli.RenderTable([]string{"Code", "Hash", "Issued", "Expires", "Status", "Lookups"}, rows))
			return nil
		},
	}
}
