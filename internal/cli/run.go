package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/filesentry/internal/alert"
	"github.com/ppiankov/filesentry/internal/api"
	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/store"
	"github.com/ppiankov/filesentry/internal/supervisor"
)

var (
	runAlertsPath string
	runLogJSON    bool
	runNoWatch    bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runAlertsPath, "alerts", "", "Path to webhook alert config YAML (default <data dir>/alerts.yaml)")
	runCmd.Flags().BoolVar(&runLogJSON, "log-json", false, "Emit logs as JSON")
	runCmd.Flags().BoolVar(&runNoWatch, "idle", false, "Start the API only; do not start monitoring until told to")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long:  "Starts the monitoring pipeline and serves the control API.\nThe configuration file is hot-reloaded on change.",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := loadOrInitConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(flagDB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	alertsPath := runAlertsPath
	if alertsPath == "" {
		alertsPath = filepath.Join(dataDir(), "alerts.yaml")
	}
	hooks, err := alert.LoadConfig(alertsPath)
	if err != nil {
		return fmt.Errorf("load alert config: %w", err)
	}
	alerts := alert.NewDispatcher(hooks, log)

	sup := supervisor.New(st, alerts, flagStateDir, log)

	if !runNoWatch {
		if err := sup.Start(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := config.NewReloader(flagConfig, func(next *config.Config) {
		if !sup.Running() {
			return
		}
		if err := sup.Restart(next); err != nil {
			log.Error("config reload restart failed", "level", "ERROR", "error", err)
		}
	})
	if err != nil {
		log.Warn("config hot-reload disabled", "level", "WARN", "error", err)
	} else {
		go func() { _ = reloader.Run(ctx) }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received", "level", "INFO")
		cancel()
	}()

	srv := api.NewServer(sup, st, flagConfig, log)
	log.Info("control api listening", "level", "INFO", "addr", flagAddr)
	err = srv.Serve(ctx, flagAddr)

	if stopErr := sup.Stop(); stopErr != nil && !errors.Is(stopErr, supervisor.ErrNotRunning) {
		log.Warn("pipeline stop failed", "level", "WARN", "error", stopErr)
	}
	return err
}

// loadOrInitConfig reads the config file, writing a default one on
// first run so the daemon can come up with the API only.
func loadOrInitConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = config.Default()
	if mkErr := os.MkdirAll(filepath.Dir(flagConfig), 0700); mkErr != nil {
		return nil, mkErr
	}
	if saveErr := config.Save(flagConfig, cfg); saveErr != nil {
		return nil, saveErr
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if runLogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
