package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"macrodash/config"
	"macrodash/internal/api"
	"macrodash/internal/app"
	"macrodash/internal/cache"
	"macrodash/internal/gateway"
	"macrodash/internal/logger"
	"macrodash/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[macrodash] starting...")

	cfg := config.Load()
	logger.Init("macrodash", logger.ParseLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := app.Build(cfg, reg)
	if err != nil {
		log.Fatalf("[macrodash] %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := gateway.NewHub(p.Metrics)
	defer hub.Close()

	if n, err := p.SeedFromSQLite(ctx, hub); err != nil {
		log.Printf("[macrodash] sqlite seed skipped: %v", err)
	} else if n > 0 {
		log.Printf("[macrodash] seeded %d series from sqlite", n)
	}

	// With Redis, refreshes reach the hub through pubsub so that other
	// processes' exports are pushed too; otherwise straight from the cache.
	relayed := false
	if cfg.RedisAddr != "" {
		rd, err := redis.NewReader(redis.ReaderConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[macrodash] redis relay disabled: %v", err)
		} else {
			defer rd.Close()
			log.Printf("[macrodash] seeded %d series from redis", hub.Seed(ctx, rd, p.CatalogKeys()))
			go hub.RelayRedis(ctx, rd)
			relayed = true
		}
	}
	if !relayed {
		p.OnRefresh = func(r cache.Result) { hub.PublishSeries(r.Series, r.FetchedAt, r.Decomposition) }
	}

	mux := api.NewRouter(api.Deps{
		Dashboard: p.Dashboard,
		GSE:       p.GSE,
		Hub:       hub,
		Metrics:   p.Metrics,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[macrodash] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[macrodash] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[macrodash] shutting down...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	srv.Shutdown(shutdownCtx)
}
