package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradedesk/internal/app"
	"tradedesk/internal/config"
	"tradedesk/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	baseURL   string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "tradedesk",
	Short:         "Predict tickers, execute trades and watch the transaction ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if baseURL != "" {
			cfg.Gateway.BaseURL = baseURL
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Override gateway.base_url")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(tradeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(companiesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
