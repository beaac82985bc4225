package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cardroom/config"
	"cardroom/core"
	"cardroom/core/snapshot"
	"cardroom/gateway"
	"cardroom/observability/logging"
	telemetry "cardroom/observability/otel"
	"cardroom/rpc"
	"cardroom/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	bootstrapFile := flag.String("bootstrap", "", "Path to an optional YAML seed applied against an empty economy")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithFile("cardroomd", cfg.Environment, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "cardroomd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	archiveDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open ledger archive", "err", err)
		os.Exit(1)
	}
	defer archiveDB.Close()

	store, err := snapshot.NewStore(filepath.Join(cfg.DataDir, "snapshots.db"), nil)
	if err != nil {
		logger.Error("failed to open snapshot store", "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	node := core.NewNode(core.Options{
		Archive:       storage.NewLedgerArchive(archiveDB),
		SnapshotStore: store,
		Snapshot: snapshot.Options{
			Retention:        cfg.Snapshot.Retention,
			VerifyOnRecovery: cfg.Snapshot.VerifyOnRecovery,
			Strict:           cfg.Snapshot.StrictRecovery,
		},
		TxnLogCap: cfg.Transactions.LogCap,
		Logger:    logger,
	})

	recovered := recoverOnStart(node, store, logger)
	if !recovered && strings.TrimSpace(*bootstrapFile) != "" {
		seed, err := config.LoadBootstrap(*bootstrapFile)
		if err != nil {
			logger.Error("failed to load bootstrap seed", "err", err)
			os.Exit(1)
		}
		if err := applyBootstrap(node, cfg, seed, logger); err != nil {
			logger.Error("failed to apply bootstrap seed", "err", err)
			os.Exit(1)
		}
	}

	rpcServer := rpc.NewServer(node, rpc.Config{
		AuthToken:          cfg.RPC.AuthToken,
		JWTSecret:          cfg.RPC.JWTSecret,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateBurst:          cfg.RPC.RateBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
	}, logger)
	var rpcHandler http.Handler = rpcServer.Handler()
	if cfg.Telemetry.Enabled && cfg.Telemetry.Traces {
		rpcHandler = otelhttp.NewHandler(rpcHandler, "rpc")
	}
	rpcSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	opsServer := gateway.NewServer(node, logger)
	opsSrv := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("json-rpc server listening", "addr", cfg.RPCAddress)
		errCh <- rpcSrv.ListenAndServe()
	}()
	go func() {
		logger.Info("ops server listening", "addr", cfg.OpsAddress)
		errCh <- opsSrv.ListenAndServe()
	}()

	stopSnapshots := make(chan struct{})
	go snapshotLoop(node, time.Duration(cfg.Snapshot.IntervalSeconds)*time.Second, stopSnapshots, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "err", err)
	}
	close(stopSnapshots)

	if _, err := node.CreateSnapshot(); err != nil {
		logger.Warn("final snapshot failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rpcSrv.Shutdown(shutdownCtx)
	_ = opsSrv.Shutdown(shutdownCtx)
}

// recoverOnStart restores the latest stored snapshot when one exists.
// A missing snapshot is a clean first start, not an error.
func recoverOnStart(node *core.Node, store *snapshot.Store, logger *slog.Logger) bool {
	_, found, err := store.Latest()
	if err != nil {
		logger.Error("failed to read snapshot store", "err", err)
		os.Exit(1)
	}
	if !found {
		return false
	}
	report, err := node.RecoverLatest()
	if err != nil {
		logger.Error("snapshot recovery failed", "err", err)
		os.Exit(1)
	}
	logger.Info("recovered from snapshot",
		"snapshotId", report.SnapshotID,
		"version", report.Version,
		"balances", report.BalancesLoaded,
		"escrows", report.EscrowsLoaded,
		"violations", len(report.Violations),
	)
	return true
}

func snapshotLoop(node *core.Node, interval time.Duration, stop <-chan struct{}, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap, err := node.CreateSnapshot()
			if err != nil {
				logger.Warn("periodic snapshot failed", "err", err)
				continue
			}
			logger.Info("snapshot captured", "snapshotId", snap.SnapshotID, "version", snap.Version)
		}
	}
}
