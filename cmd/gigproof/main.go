package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// app carries the state shared by every command.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	out     io.Writer
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper(), out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:   "gigproof",
		Short: cli.ProofIcon + " Verified gig-income reports",
		Long: `gigproof classifies bank deposits from gig platforms, summarizes the
last 90 days of gig income and issues reports lenders can verify.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}
	rootCmd.SetOut(a.out)

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/gigproof/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")

	_ = a.v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(
		a.serveCmd(),
		a.syncCmd(),
		a.importOFXCmd(),
		a.usersCmd(),
		a.reportCmd(),
		a.verifyCmd(),
		a.migrateCmd(),
		a.backupCmd(),
		a.linkCmd(),
		a.authCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(common.MessageOf(err)))
		var userErr *common.UserError
		if !errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(config.ExpandPath(config.DefaultDir))
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		a.v.Set("database.path", db)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

// configDir returns the directory holding the config file and tokens.
func (a *app) configDir() string {
	if used := a.v.ConfigFileUsed(); used != "" {
		return filepath.Dir(used)
	}
	return config.ExpandPath(config.DefaultDir)
}

// saveConfig persists v to the config file in use, creating it if needed.
func (a *app) saveConfig() error {
	path := a.v.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(a.configDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return a.v.WriteConfigAs(path)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("gigproof", version)
		},
	}
}
