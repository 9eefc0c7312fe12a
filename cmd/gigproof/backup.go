package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/storage"
	"github.com/spf13/cobra"
)

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the ledger database",
	}
	cmd.AddCommand(a.backupCreateCmd(), a.backupListCmd(), a.backupRestoreCmd(), a.backupDeleteCmd())
	return cmd
}

func (a *app) backupCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [tag]",
		Short: "Create a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			description, _ := cmd.Flags().GetString("description")
			var tag string
			if len(args) == 1 {
				tag = args[0]
			}

			store, err := a.openSQLite(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			info, err := store.Backup(ctx, tag, description)
			if err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Created backup %s (%d users, %d reports)",
				info.ID, info.RowCounts["users"], info.RowCounts["verifications"])))
			return nil
		},
	}
	cmd.Flags().StringP("description", "m", "", "description stored with the snapshot")
	return cmd
}

func (a *app) backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := storage.ListBackups(storage.BackupDir(a.cfg.Database.Path))
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				cmd.Println(cli.FormatInfo("No backups yet"))
				return nil
			}

			rows := make([][]string, 0, len(backups))
			for _, b := range backups {
				kind := "manual"
				if b.IsAuto {
					kind = "auto"
				}
				rows = append(rows, []string{
					b.ID,
					b.CreatedAt.Local().Format("Jan 2, 2006 15:04"),
					kind,
					strconv.Itoa(b.RowCounts["users"]),
					strconv.Itoa(b.RowCounts["verifications"]),
					b.Description,
				})
			}
			cmd.Println(cli.RenderTable([]string{"ID", "Created", "Kind", "Users", "Reports", "Description"}, rows))
			return nil
		},
	}
}

func (a *app) backupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the database with a snapshot",
		Long: `Replace the database with a snapshot. Stop 'gigproof serve' first.
The current database is kept next to it with a .pre-restore suffix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RestoreBackup(a.cfg.Database.Path, args[0]); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Restored backup " + args[0]))
			return nil
		},
	}
}

func (a *app) backupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.DeleteBackup(storage.BackupDir(a.cfg.Database.Path), args[0]); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Deleted backup " + args[0]))
			return nil
		},
	}
}
