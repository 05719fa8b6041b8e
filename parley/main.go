package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parley/parley/config"
	"parley/parley/routes"
	"parley/parley/services/feed"
	"parley/parley/sources/psql"
	"parley/parley/sources/psql/dao"
	"parley/parley/utils/logging"
)

const purgeInterval = time.Hour

func main() {
	cfg := config.LoadConfig()
	if err := logging.InitLogger(cfg.LogDir); err != nil {
		os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := psql.NewDatabase(connectCtx, cfg)
	cancel()
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	hub := feed.NewHub()
	r, err := routes.Gateway(cfg, db, hub)
	if err != nil {
		logging.ErrorLogger.Error("gateway setup error", zap.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.AppLogger.Info("gateway listening", zap.String("addr", cfg.Addr), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if db.Notifies {
		g.Go(func() error {
			return psql.NewListener(psql.DSN(cfg), hub.Publish).Run(gctx)
		})
	}
	g.Go(func() error {
		purgeRevoked(gctx, dao.NewRevokedTokenDAO(db.DB))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.ErrorLogger.Error("gateway stopped", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.AppLogger.Info("server shutdown complete")
}

// purgeRevoked drops expired revocations every purgeInterval until ctx ends.
func purgeRevoked(ctx context.Context, revoked *dao.RevokedTokenDAO) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := revoked.PurgeExpired(ctx, now)
			if err != nil {
				logging.ErrorLogger.Error("purge revoked tokens failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logging.AppLogger.Info("purged revoked tokens", zap.Int64("count", n))
			}
		}
	}
}
