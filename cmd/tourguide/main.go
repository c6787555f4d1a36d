// Command tourguide runs the tour service and authoring utilities.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/jkallio/tourguide"
	"github.com/jkallio/tourguide/internal/capture"
	"github.com/jkallio/tourguide/internal/persistence"
	"github.com/jkallio/tourguide/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tourguide",
		Short:         "Guided-tour engine service and authoring tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("db", "tourguide.db", "path to the SQLite database")

	viper.SetEnvPrefix("TOURGUIDE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(), newImportCmd(), newScanCmd())
	return root
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStores() (persistence.Persistence, *sql.DB, error) {
	db, err := sql.Open("sqlite", viper.GetString("db"))
	if err != nil {
		return persistence.Persistence{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return persistence.Persistence{}, nil, fmt.Errorf("init schema: %w", err)
	}
	return persistence.Persistence{
		Configurations: store, Progress: store, Choices: store, Events: store,
	}, db, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tour runtime API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			stores, db, err := openStores()
			if err != nil {
				return err
			}
			defer db.Close()

			var bridge *capture.Bridge
			if token := viper.GetString("capture-token"); token != "" {
				bridge = capture.NewBridge(token, logCaptureHandler{log: log}, log)
			}

			srv := server.New(server.Config{
				Addr:           viper.GetString("addr"),
				APIKey:         viper.GetString("api-key"),
				AllowedOrigins: viper.GetStringSlice("origins"),
			}, stores, bridge, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("addr", ":8700", "listen address")
	cmd.Flags().String("api-key", "", "API key required on widget requests")
	cmd.Flags().StringSlice("origins", nil, "allowed CORS origins (empty allows all)")
	cmd.Flags().String("capture-token", "", "enable the capture endpoint with this session token")
	_ = viper.BindPFlags(cmd.Flags())
	return cmd
}

// logCaptureHandler surfaces capture traffic on the service log; the
// authoring UI consumes the same messages over its own connection.
type logCaptureHandler struct {
	log *slog.Logger
}

func (h logCaptureHandler) OnReady() {
	h.log.Info("capture session ready")
}

func (h logCaptureHandler) OnElement(el capture.CapturedElement) {
	h.log.Info("element captured",
		slog.String("selector", el.Selector),
		slog.String("label", el.Label),
	)
}

func (h logCaptureHandler) OnScan(els []capture.CapturedElement) {
	h.log.Info("page scanned", slog.Int("elements", len(els)))
}

func (h logCaptureHandler) OnStep(step tourguide.Step) {
	h.log.Info("step draft received", slog.String("step", step.ID), slog.String("title", step.Title))
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <tour.yaml>",
		Short: "Import a tour definition from YAML into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			cfg, err := tourguide.LoadConfigurationYAML(f)
			if err != nil {
				return err
			}

			stores, db, err := openStores()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := stores.Configurations.SaveConfiguration(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("save configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %q with %d steps\n", cfg.ID, len(cfg.Steps))
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <page.html> [page2.html ...]",
		Short: "List interactive elements of pages with synthesized selectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages := make(map[string]io.Reader, len(args))
			for _, name := range args {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				pages[name] = f
			}

			scanned, err := capture.ScanPages(cmd.Context(), pages)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				return enc.Encode(scanned[args[0]])
			}
			return enc.Encode(scanned)
		},
	}
}
