// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/browser"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/executor"
	"github.com/xkilldash9x/webpilot-cli/internal/observability"
	"github.com/xkilldash9x/webpilot-cli/internal/oracle"
	"github.com/xkilldash9x/webpilot-cli/internal/voice"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   `run "<goal>"`,
		Short: "Executes one natural-language goal against a page",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line flags correctly
			// override values from the config file and environment.
			if err := viper.BindPFlag("executor.continue_on_error", cmd.Flags().Lookup("continue-on-error")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("voice.enabled", cmd.Flags().Lookup("speak")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal now that the flag bindings from PreRunE are live.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config with flag overrides: %w", err)
			}
			cfg.Run.Goal = args[0]
			cfg.Run.TargetURL = normalizeURL(viper.GetString("url"))
			cfg.Run.OutputDir = viper.GetString("output")
			cfg.Run.Speak = cfg.Voice.Enabled

			runID := uuid.New().String()
			logger.Info("Starting run",
				zap.String("runID", runID),
				zap.String("goal", cfg.Run.Goal),
				zap.String("url", cfg.Run.TargetURL),
				zap.Bool("continue_on_error", cfg.Executor.ContinueOnError),
			)

			driver, err := browser.NewDriver(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			// Teardown must run even when ctx is already cancelled.
			defer driver.Close(context.Background())

			agent := executor.New(
				cfg.Executor,
				driver,
				oracle.New(cfg.Oracle, logger),
				browser.NewLocatorResolver(driver, logger),
				voice.New(cfg.Voice, logger),
				logger,
			)

			final, err := agent.Run(ctx, cfg.Run.Goal, cfg.Run.TargetURL)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted gracefully", zap.String("runID", runID))
					return fmt.Errorf("run aborted by user signal")
				}
				logger.Error("Run failed", zap.Error(err), zap.String("runID", runID))
				return err
			}

			outDir := filepath.Join(cfg.Run.OutputDir, runID)
			if err := persistArtifacts(ctx, outDir, final.Artifacts); err != nil {
				return fmt.Errorf("failed to persist artifacts: %w", err)
			}

			printRunReport(cmd, final, runID, outDir)

			if final.Phase == schemas.PhaseError {
				return fmt.Errorf("run ended in error: %s", final.Err)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("url", "u", "", "Target page URL to navigate to before executing")
	runCmd.Flags().StringP("output", "o", "webpilot-runs", "Directory for run artifacts")
	runCmd.Flags().Bool("continue-on-error", true, "Keep executing after a failed step (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless (Overrides config/env)")
	runCmd.Flags().Bool("speak", false, "Narrate progress with the system voice")

	return runCmd
}

// normalizeURL ensures the target carries a scheme so navigation succeeds.
func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

// persistArtifacts writes all run artifacts concurrently into dir.
func persistArtifacts(ctx context.Context, dir string, arts []schemas.Artifact) error {
	if len(arts) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, art := range arts {
		g.Go(func() error {
			data := []byte(art.Content)
			if len(art.Binary) > 0 {
				data = art.Binary
			}
			path := filepath.Join(dir, art.Filename)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", art.Filename, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// printRunReport prints the operator-facing result summary.
func printRunReport(cmd *cobra.Command, final schemas.RunState, runID, outDir string) {
	completed := 0
	for _, a := range final.Actions {
		if a.Status == schemas.StatusCompleted {
			completed++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun Complete. Run ID: %s\n", runID)
	fmt.Fprintf(out, "Result: %d/%d actions completed (phase: %s)\n", completed, len(final.Actions), final.Phase)
	for _, a := range final.Actions {
		mark := "ok"
		if a.Status != schemas.StatusCompleted {
			mark = string(a.Status)
		}
		fmt.Fprintf(out, "  [%s] %s\n", mark, a.Description)
	}
	fmt.Fprintf(out, "Artifacts written to %s\n", outDir)
}
