package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/karaokebar/karaoke-web/internal/blobstore"
	"github.com/karaokebar/karaoke-web/internal/config"
	"github.com/karaokebar/karaoke-web/internal/db"
	"github.com/karaokebar/karaoke-web/internal/logging"
	"github.com/karaokebar/karaoke-web/internal/playback"
	"github.com/karaokebar/karaoke-web/internal/remote"
	"github.com/karaokebar/karaoke-web/internal/ui"
	"github.com/karaokebar/karaoke-web/internal/video"
	"github.com/karaokebar/karaoke-web/internal/web"
)

const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting karaoke bar",
		"version", config.Version,
		"api_url", logging.SanitizeURL(cfg.APIURL()),
		"max_video", logging.Size(cfg.MaxVideoBytes()),
	)

	database, err := db.New(cfg.BlobDSN(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	defer database.Close()

	store := blobstore.NewStore(database.Conn())

	client := remote.NewHTTPClient(remote.Options{
		BaseURL:       cfg.APIURL(),
		Timeout:       cfg.RequestTimeout(),
		MaxVideoBytes: cfg.MaxVideoBytes(),
		Logger:        logger,
	})

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	tray := ui.NewTray(ui.TrayConfig{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
		Logger:  logger,
		OnQuit:  quit,
	})

	registry := video.NewRegistry(video.RegistryConfig{
		Client:    client,
		Store:     store,
		TTL:       cfg.SessionTTL(),
		Logger:    logger,
		OnLoading: tray.SetLoading,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx, sweepInterval)

	server, err := web.NewServer(web.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		ChartLimit:     cfg.ChartLimit(),
		Client:         client,
		Registry:       registry,
		Store:          store,
		PlaybackServer: playback.NewServer(logger),
		Logger:         logger,
		StartTime:      startTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                        KARAOKE BAR                        ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Open:       %-45s ║\n", server.URL())
	fmt.Printf("║  Service:    %-45s ║\n", logging.SanitizeURL(cfg.APIURL()))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		case <-quitCh:
			return
		}
		quit()
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	registry.ReleaseAll(shutdownCtx)
	if !cfg.Headless() {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}
