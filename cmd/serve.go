package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"capturehub/internal/api"
	"capturehub/internal/browser"
	"capturehub/internal/config"
	"capturehub/internal/database"
	"capturehub/internal/events"
	"capturehub/internal/gateway"
)

const journalBuffer = 256

var serveViper = config.New()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub server",
	Long: `Starts the HTTP hub. Browsers capture through POST /capture and must
heartbeat within the browser timeout or the reaper evicts them. Requests
that match no internal route are forwarded through the configured gateway
routes. Gateway routes are reloaded when the config file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cmd, slog.Default())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	if err := config.BindServerFlags(serveViper, serveCmd.Flags()); err != nil {
		panic(err)
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) error {
	if err := config.ReadFile(serveViper, configPath); err != nil {
		return err
	}
	cfg, err := config.Load(serveViper)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	registry := browser.NewRegistry(bus)
	reaper := browser.NewReaper(registry, cfg.BrowserTimeout,
		browser.WithPeriodFactor(cfg.ReaperPeriodFactor),
		browser.WithLogger(logger))

	gw, err := gateway.New(cfg.Routes, nil, api.WriteUnauthorized, logger)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	stopJournal, err := startJournal(cfg.JournalPath, bus, logger)
	if err != nil {
		return err
	}
	defer stopJournal()

	srv, err := api.NewServer(api.Options{
		Registry:           registry,
		Reaper:             reaper,
		Bus:                bus,
		Gateway:            gw,
		HandlerPrefix:      cfg.HandlerPrefix,
		BrowserTimeout:     cfg.BrowserTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		JournalEnabled:     cfg.JournalPath != "",
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	if configPath != "" {
		config.Watch(serveViper, logger, func(next config.Config) {
			if err := gw.Replace(next.Routes); err != nil {
				logger.Warn("gateway reload rejected", "error", err)
				return
			}
			logger.Info("gateway routes reloaded", "routes", len(next.Routes))
		})
	}

	addr, stopServer, err := srv.Start(ctx, cfg.Addr())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "capturehub listening on http://%s%s\n", addr, cfg.HandlerPrefix)

	<-ctx.Done()
	logger.Info("shutting down")
	stopServer()
	return nil
}

// startJournal opens the journal at path and follows bus into it. The
// returned stop func ends the follower, waits for it to drain, then
// closes the database. An empty path disables the journal.
func startJournal(path string, bus *events.Bus, logger *slog.Logger) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := database.InitDB(path); err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := database.Follow(ctx, bus, journalBuffer, logger)
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			database.CloseDB()
		})
	}, nil
}
