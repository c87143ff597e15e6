package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"accessledger/internal/adapter"
	"accessledger/internal/api"
	"accessledger/internal/app"
	"accessledger/internal/config"
	internaldb "accessledger/internal/db"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		logHandler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	// writeDB: single-connection pool for serialized writes (WAL + txlock=immediate).
	// readDB:  4-connection pool for concurrent API reads.
	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.LedgerDBPath, 4)
	if err != nil {
		log.Fatalf("open ledger store: %v", err)
	}
	defer writeDB.Close()
	defer readDB.Close()

	logger.Info("running ledger migrations", "path", cfg.LedgerDBPath)
	if err := internaldb.RunMigrations(writeDB); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	adapters := make([]adapter.SourceAdapter, 0, len(cfg.AdapterFixtures))
	for _, path := range cfg.AdapterFixtures {
		a, err := adapter.LoadStaticAdapter(path)
		if err != nil {
			log.Fatalf("load adapter fixture %s: %v", path, err)
		}
		logger.Info("loaded source adapter", "source_system", a.SourceSystemID(), "fixture", path)
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		logger.Warn("no source adapters configured; runs will close empty")
	}

	application, err := app.New(ctx, app.Deps{
		Cfg:      cfg,
		WriteDB:  writeDB,
		ReadDB:   readDB,
		Adapters: adapters,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("wire application: %v", err)
	}

	handler := api.NewHandler(
		application.Controller, application.Drift,
		application.Runs, application.Matrix, application.Principals,
		logger,
	)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		APIKeys:            application.APIKeys,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	application.Scheduler.Start()
	defer application.Scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "environments", cfg.Environments)
	log.Printf("Try: curl -H 'Authorization: Bearer <jwt>' http://%s/v1/runs", curlHostForListenAddr(cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("server stopped")
}

// curlHostForListenAddr turns a listen address into something pasteable into
// a curl command: wildcard and empty hosts become localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost:" + port
	}
	return net.JoinHostPort(host, port)
}
