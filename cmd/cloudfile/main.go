package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/core"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func Run(ctx context.Context) error {

	listen := flag.String("listen", getenv("CLOUDFILE_LISTEN", "9100"), "HTTP listen port")
	dataDir := flag.String("data-dir", getenv("CLOUDFILE_DATA_DIR", "./data"), "directory for the account database and spooled uploads")
	accountsFile := flag.String("accounts", getenv("CLOUDFILE_ACCOUNTS", ""), "optional YAML file of accounts to import at startup")
	debug := flag.Bool("debug", false, "enable debug logging")

	flag.Parse()

	level := log.InfoLevel
	if *debug {
		level = log.DebugLevel
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	// Ensure data directory is absolute for easier debugging.
	absDataDir, err := filepath.Abs(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := accounts.OpenSQLiteStore(ctx, filepath.Join(absDataDir, "accounts.sqlite"))
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}

	defer store.Close()

	if *accountsFile != "" {
		seed, err := accounts.LoadFile(*accountsFile)
		if err != nil {
			return fmt.Errorf("failed to load accounts file: %w", err)
		}

		if err := store.Import(ctx, seed); err != nil {
			return fmt.Errorf("failed to import accounts: %w", err)
		}
		slog.Info("Imported accounts", "file", *accountsFile, "count", len(seed))
	}

	cfg := core.NewConfig(
		core.WithDataDir(absDataDir),
		core.WithAccountStore(store),
		core.WithBasicAuth(os.Getenv("CLOUDFILE_API_USER"), os.Getenv("CLOUDFILE_API_PASSWORD")),
	)

	if cfg.APIUser == "" || cfg.APIPassword == "" {
		slog.Warn("API basic auth is disabled; set CLOUDFILE_API_USER and CLOUDFILE_API_PASSWORD to enable it")
	}

	server, err := core.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create cloudfile server: %w", err)
	}

	// Uploads stream for as long as they need to, so there is no write
	// timeout.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", *listen),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-egCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting cloudfile HTTP server", "port", *listen, "data_dir", absDataDir)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("cloudfile exited with error", "error", err)
		os.Exit(1)
	}
}
