package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitchline/pulse/internal/api"
	"github.com/pitchline/pulse/internal/config"
	"github.com/pitchline/pulse/internal/db"
	"github.com/pitchline/pulse/internal/hub"
	"github.com/pitchline/pulse/internal/poll"
	"github.com/pitchline/pulse/internal/session"
	"github.com/pitchline/pulse/internal/store"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{Use: "pulsed", Short: "Pulse daemon (realtime hub + polling API)"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			return db.ApplyMigrations(ctx, dbConn)
		},
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := slog.Default()

			ctx := context.Background()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			if err := db.ApplyMigrations(ctx, dbConn); err != nil {
				return err
			}

			st := store.New(dbConn)
			resolver := session.NewResolver(st, cfg.Auth.JWTSecret, cfg.Auth.SessionCacheTTL, cfg.Auth.SessionCacheSize)
			pollSvc := poll.NewService(st, poll.Options{
				FastInterval: time.Duration(cfg.Poll.FastIntervalMS) * time.Millisecond,
				SlowInterval: time.Duration(cfg.Poll.SlowIntervalMS) * time.Millisecond,
				MaxItems:     cfg.Poll.MaxItems,
			})
			h := hub.New(hub.Options{
				QueueSize:      cfg.Hub.QueueSize,
				SendBuffer:     cfg.Hub.SendBuffer,
				PresenceWindow: cfg.Presence.Window,
				Logger:         logger,
			})

			bgCtx, bgCancel := context.WithCancel(context.Background())
			defer bgCancel()

			go h.Run(bgCtx)
			go statsLoop(bgCtx, h, logger)

			a := api.New(cfg, h, resolver, pollSvc, logger)
			srv := &http.Server{Addr: cfg.API.Listen, Handler: a.Router()}

			go func() {
				logger.Info("pulsed listening", "addr", cfg.API.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("listen error", "err", err)
				}
			}()

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			logger.Info("shutting down")

			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}

// statsLoop logs hub occupancy once a minute so operators can watch
// connection counts without scraping metrics.
func statsLoop(ctx context.Context, h *hub.Hub, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := h.Stats()
			logger.Info("hub stats",
				"connections", s.Connections,
				"principals", s.Principals,
				"channels", s.Channels)
		}
	}
}
