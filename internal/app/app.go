// Package app wires the series pipeline from configuration. Both binaries
// build the same pipeline; they differ only in what they drive it with.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"macrodash/config"
	"macrodash/internal/cache"
	"macrodash/internal/catalog"
	"macrodash/internal/dashboard"
	"macrodash/internal/export"
	"macrodash/internal/fred"
	"macrodash/internal/gateway"
	"macrodash/internal/hpfilter"
	"macrodash/internal/market"
	"macrodash/internal/metrics"
	"macrodash/internal/model"
	"macrodash/internal/notification"
	"macrodash/internal/store/redis"
	"macrodash/internal/store/sqlite"
)

// Redis breaker tuning.
const (
	breakerMaxFailures = 3
	breakerReset       = 30 * time.Second
)

// Pipeline is the wired series pipeline.
type Pipeline struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Catalog   *catalog.Catalog
	Client    *fred.Client
	Fanout    *export.Fanout
	Cache     *cache.Cache
	Dashboard *dashboard.Service
	GSE       *market.GSE
	Alerter   *notification.Alerter

	// OnRefresh, when set before the first fetch, sees every successful refresh.
	OnRefresh func(cache.Result)
}

// Build creates the pipeline. Sinks that cannot be opened are logged and
// left out; only a bad catalog or client config is fatal.
func Build(cfg *config.Config, reg *prometheus.Registry) (*Pipeline, error) {
	m := metrics.New(reg)
	lg := slog.Default()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	client, err := fred.New(fred.Config{
		BaseURL: cfg.FREDBaseURL,
		APIKey:  cfg.FREDAPIKey,
		Timeout: cfg.FetchTimeout,
		Metrics: m,
		Logger:  lg,
	})
	if err != nil {
		return nil, err
	}

	fan := export.NewFanout(hpfilter.DefaultLambda, m, openSinks(cfg, m)...)

	p := &Pipeline{
		Config:  cfg,
		Metrics: m,
		Catalog: cat,
		Client:  client,
		Fanout:  fan,
		Alerter: notification.NewAlerter(cfg.AlertInterval, nil, notifiers(cfg)...),
	}
	p.Cache = cache.New(dashboard.NewLoader(cat, client), cache.Options{
		TTL:       cfg.CacheTTL,
		Exporter:  fan,
		Decompose: hpfilter.Decomposer(hpfilter.DefaultLambda),
		Metrics:   m,
		Logger:    lg,
		OnRefresh: func(r cache.Result) {
			if p.OnRefresh != nil {
				p.OnRefresh(r)
			}
		},
		OnRefreshError: p.Alerter.RefreshFailed,
	})
	p.Dashboard = dashboard.New(dashboard.Config{
		Catalog:     cat,
		Cache:       p.Cache,
		TTL:         cfg.CacheTTL,
		Concurrency: cfg.FetchConcurrency,
		Logger:      lg,
	})
	if cfg.GSEURL != "" {
		p.GSE = market.NewGSE(market.GSEConfig{
			URL:       cfg.GSEURL,
			ExportDir: cfg.ExportDir,
			Logger:    lg,
		})
	}

	log.Printf("[app] pipeline ready: %d catalog entries, sinks=%v", cat.Len(), fan.Sinks())
	return p, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// notifiers returns the configured alert backends.
func notifiers(cfg *config.Config) []notification.Notifier {
	out := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.AlertWebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notification.NewTelegramNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return out
}

// openSinks opens every configured export sink.
func openSinks(cfg *config.Config, m *metrics.Metrics) []model.SeriesSink {
	var sinks []model.SeriesSink

	if cfg.ExportDir != "" {
		w, err := export.NewCSVWriter(cfg.ExportDir)
		if err != nil {
			log.Printf("[app] csv export disabled: %v", err)
		} else {
			sinks = append(sinks, w)
		}
	}

	if cfg.SQLitePath != "" {
		w, err := sqlite.New(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[app] sqlite export disabled: %v", err)
		} else {
			sinks = append(sinks, w)
		}
	}

	if cfg.RedisAddr != "" {
		w, err := redis.New(redis.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			log.Printf("[app] redis export disabled: %v", err)
		} else {
			cb := redis.NewCircuitBreaker(breakerMaxFailures, breakerReset, nil)
			cb.OnStateChange = func(from, to redis.State) {
				log.Printf("[app] redis breaker %s -> %s", from, to)
				m.SetBreakerState(int(to), to == redis.StateOpen)
			}
			sinks = append(sinks, instrumentRedisSink(redis.NewSink(w, cb), m))
		}
	}
	return sinks
}

// CatalogKeys returns the key of every catalog entry.
func (p *Pipeline) CatalogKeys() []model.Key {
	keys := make([]model.Key, 0, p.Catalog.Len())
	for _, e := range p.Catalog.Entries() {
		keys = append(keys, e.Key())
	}
	return keys
}

// SeedFromSQLite publishes the last SQLite export of every catalog key to
// hub. It is a no-op without a SQLite path.
func (p *Pipeline) SeedFromSQLite(ctx context.Context, hub *gateway.Hub) (int, error) {
	if p.Config.SQLitePath == "" {
		return 0, nil
	}
	r, err := sqlite.NewReader(p.Config.SQLitePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return hub.Seed(ctx, r, p.CatalogKeys()), nil
}

// instrumentRedisSink reports held and replayed writes to m.
func instrumentRedisSink(s *redis.Sink, m *metrics.Metrics) *redis.Sink {
	s.OnBuffer = m.SetHeldWrites
	s.OnFlush = m.ObserveReplay
	return s
}

// Close flushes pending alerts and releases the export sinks.
func (p *Pipeline) Close() error {
	p.Alerter.Close()
	return p.Fanout.Close()
}
