package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zing-server/internal/config"
	"zing-server/internal/logger"
	"zing-server/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	st := openStore(cfg, log)
	defer st.Close()

	server := NewServer(cfg, st, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		log.Info("zing server listening",
			zap.String("addr", cfg.Addr),
			zap.Bool("dev_mode", cfg.DevModeEnabled))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
	server.Shutdown()
}

// openStore connects to Redis when an address is configured and falls
// back to the in-memory store otherwise.
func openStore(cfg *config.Config, log *zap.Logger) store.Store {
	if cfg.RedisAddr == "" {
		log.Info("no redis address configured, using in-memory store")
		return store.NewMemoryStore()
	}

	st, err := store.NewRedisStore(cfg.RedisAddr, "", 0)
	if err != nil {
		log.Warn("redis unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewMemoryStore()
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return st
}
