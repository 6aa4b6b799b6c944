package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/config"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "stmt",
		Short: "🧾 Progressive bank statement parser",
		Long: `stmt extracts transactions from bank statements in PDF, CSV, spreadsheet,
JSON, OFX and plain-text form.

Each document is tried against a ladder of strategies, from bank-specific
line patterns down to a heuristic pipeline, and every attempt is recorded so
the parser learns which patterns and column mappings work.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/stmt/config.yaml or ~/.config/stmt/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides database.path)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(attemptsCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(annotateCmd())
	rootCmd.AddCommand(mappingsCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates bad input (2) from everything else (1).
func exitCode(err error) int {
	if common.IsPrecondition(err) || errors.Is(err, common.ErrInvalidConfig) {
		return 2
	}
	return 1
}

func initConfig(cmd *cobra.Command, _ []string) error {
	// A .env file is optional; it only seeds the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STMT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		viper.Set("database.path", db)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stmt %s\n", version)
		},
	}
}
