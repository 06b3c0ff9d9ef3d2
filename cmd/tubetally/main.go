package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tubetally/tubetally/internal/api"
	"github.com/tubetally/tubetally/internal/browser"
	"github.com/tubetally/tubetally/internal/config"
	"github.com/tubetally/tubetally/internal/metacache"
	"github.com/tubetally/tubetally/internal/netutil"
	"github.com/tubetally/tubetally/internal/notify"
	"github.com/tubetally/tubetally/internal/probe"
	"github.com/tubetally/tubetally/internal/scrape"
	"github.com/tubetally/tubetally/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("tubetally config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"cache_path", cfg.CachePath(),
		"cache_bound", cfg.CacheBound,
		"freshness_window", cfg.FreshnessWindow,
		"fetch_delay", cfg.FetchDelay,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, true)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	prober := probe.NewClient(cfg.CDPURL(), time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := prober.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := prober.Close(); err != nil {
			slog.Debug("probe client close failed", "error", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath()), 0o755); err != nil {
		slog.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	store := metacache.Open(cfg.CachePath(), cfg.CacheBound)
	defer store.Close()

	coord := syncer.New(store, scrape.NewFetcher(0), prober, notify.New(cfg.NotifyEndpoint, nil), syncer.Config{
		FreshnessWindow: cfg.FreshnessWindow,
		FetchDelay:      cfg.FetchDelay,
		SPARetryBackoff: cfg.SPARetryBackoff,
	})

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(coord)}

	go func() {
		slog.Info("tubetally listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
