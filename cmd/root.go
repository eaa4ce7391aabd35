// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/observability"
)

var cfgFile string

// newRootCmd builds a pristine root command. Tests construct their own
// instance; the package-level rootCmd serves the real binary.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webpilot-cli",
		Short: "Webpilot drives a browser toward a natural-language goal.",
		Long: `Webpilot turns a natural-language goal into a browser action plan and
executes it step by step. Plans come from a vision oracle when an API key is
configured, and from a deterministic keyword classifier otherwise.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			if err := initializeConfig(); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Initialize a fallback logger so the failure is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot-cli"})
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting webpilot-cli", zap.String("version", Version))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.webpilot/config.yaml)")
	cmd.SetVersionTemplate(`{{printf "webpilot-cli version %s\n" .Version}}`)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

var rootCmd = newRootCmd()

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil && logger != zap.NewNop() {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig() error {
	// A local .env may carry the oracle API key; absence is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".webpilot"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WEBPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}
	return nil
}
