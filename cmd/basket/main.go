package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/basket/internal/backup"
	"github.com/dukerupert/basket/internal/config"
	"github.com/dukerupert/basket/internal/database"
	"github.com/dukerupert/basket/internal/logging"
	"github.com/dukerupert/basket/internal/notify"
	"github.com/dukerupert/basket/internal/server"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "vapid-keys":
			generateVAPIDKeys()
			return
		case "backups":
			listBackups()
			return
		case "restore":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: basket restore <snapshot-key>")
				os.Exit(2)
			}
			restoreBackup(os.Args[2])
			return
		}
	}

	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, err := server.New(cfg, db, nil, logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start background workers", "error", err)
		os.Exit(1)
	}

	// No WriteTimeout: websocket connections are long-lived.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("basket running", "addr", "http://localhost:"+cfg.Port,
			"sync", cfg.SyncEnabled(), "push", cfg.PushEnabled())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	cancel()
	if err := srv.Close(); err != nil {
		slog.Error("close error", "error", err)
		os.Exit(1)
	}
}

func generateVAPIDKeys() {
	pub, priv, err := notify.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("BASKET_VAPID_PUBLIC_KEY=%s\nBASKET_VAPID_PRIVATE_KEY=%s\n", pub, priv)
}

func listBackups() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	m := backup.NewManager(server.BackupConfig(cfg), nil, nil, logger)

	keys, err := m.Snapshots(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "list snapshots: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		fmt.Println(k)
	}
}

// restoreBackup replaces the database file with a snapshot. Run it with the
// daemon stopped.
func restoreBackup(key string) {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	m := backup.NewManager(server.BackupConfig(cfg), nil, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := m.Restore(ctx, key, cfg.DBPath); err != nil {
		fmt.Fprintf(os.Stderr, "restore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored %s to %s\n", key, cfg.DBPath)
}
