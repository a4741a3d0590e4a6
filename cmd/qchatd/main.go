package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Uttam-Mahata/qchat/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "YAML config file path")

	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate file (enables TLS with -key)")
	flag.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS private key file")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()

	if configPath != "" {
		loaded, err := server.LoadConfig(configPath)
		if err != nil {
			log.WithError(err).Fatal("config load failed")
		}
		cfg = loaded
	}

	// Environment variable overrides
	if addr := os.Getenv("QCHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dbPath := os.Getenv("QCHAT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if level := os.Getenv("QCHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	storage, err := server.NewStorage(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("storage init failed")
	}
	defer storage.Close()
	log.WithField("db", cfg.DBPath).Info("storage initialized")

	srv := server.NewServer(storage, server.NewHub(cfg.EventBuffer), cfg, log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the events endpoint holds connections open.
	}

	// Expired sessions accumulate otherwise.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				if n, err := storage.PruneSessions(); err != nil {
					log.WithError(err).Warn("session prune failed")
				} else if n > 0 {
					log.WithField("pruned", n).Debug("sessions pruned")
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		useTLS := cfg.CertFile != "" && cfg.KeyFile != ""
		log.WithFields(logrus.Fields{
			"addr": cfg.Addr,
			"tls":  useTLS,
		}).Info("qchatd listening")

		if useTLS {
			errCh <- httpSrv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}
}
