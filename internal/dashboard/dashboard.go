// Package dashboard assembles the per-country batch of indicator panels.
//
// Every catalog entry of a country is one unit of work: fetch through the
// cache, then try to decompose. Units run concurrently up to a bound and
// fail independently; a unit's failure is reported on its panel and never
// aborts the batch.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"macrodash/internal/cache"
	"macrodash/internal/catalog"
	"macrodash/internal/hpfilter"
	"macrodash/internal/logger"
	"macrodash/internal/model"
	"macrodash/internal/normalize"
)

var (
	// ErrUnknownCountry means the catalog has no entries for the country.
	ErrUnknownCountry = errors.New("dashboard: unknown country")

	// ErrNoIdentifier means the catalog has no series for the country and indicator.
	ErrNoIdentifier = errors.New("dashboard: no series identifier")
)

const defaultConcurrency = 4

// NewLoader returns the cache loader that resolves a key through cat,
// fetches the observations and normalizes them.
func NewLoader(cat *catalog.Catalog, fetcher model.ObservationFetcher) cache.Loader {
	return func(ctx context.Context, key model.Key) (model.Series, error) {
		id, ok := cat.IdentifierFor(key.Entity, key.Indicator)
		if !ok {
			return model.Series{}, fmt.Errorf("%w: %s", ErrNoIdentifier, key)
		}
		obs, err := fetcher.Fetch(ctx, id)
		if err != nil {
			return model.Series{}, err
		}
		return normalize.Series(key, id, obs), nil
	}
}

// Panel is one indicator of a country as shown on the dashboard.
type Panel struct {
	Country   string         `json:"country"`
	Indicator string         `json:"indicator"`
	SeriesID  model.SeriesID `json:"series_id"`
	Title     string         `json:"title,omitempty"`
	Units     string         `json:"units,omitempty"`

	Series    model.Series `json:"series"`
	FetchedAt time.Time    `json:"fetched_at"`
	Stale     bool         `json:"stale"`
	Latest    *model.Point `json:"latest,omitempty"`

	// Decomposition is nil when the series is too short to decompose.
	Decomposition *model.Decomposition `json:"decomposition,omitempty"`

	// Empty means the provider returned no usable values.
	Empty bool `json:"empty"`

	// Error is set when the series could not be obtained at all.
	Error string `json:"error,omitempty"`
}

// Config configures a Service. Catalog and Cache are required.
type Config struct {
	Catalog     *catalog.Catalog
	Cache       *cache.Cache
	Lambda      float64
	TTL         time.Duration // 0 uses the cache default
	Concurrency int
	Logger      *slog.Logger
}

// Service builds panels from the catalog and the cache.
type Service struct {
	catalog     *catalog.Catalog
	cache       *cache.Cache
	lambda      float64
	ttl         time.Duration
	concurrency int
	log         *slog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Lambda <= 0 {
		cfg.Lambda = hpfilter.DefaultLambda
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Service{
		catalog:     cfg.Catalog,
		cache:       cfg.Cache,
		lambda:      cfg.Lambda,
		ttl:         cfg.TTL,
		concurrency: cfg.Concurrency,
		log:         lg.With(slog.String("component", "dashboard")),
	}
}

// Catalog returns the catalog the service reads from.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Panels returns one panel per catalog entry of country, in catalog order.
func (s *Service) Panels(ctx context.Context, country string) ([]Panel, error) {
	entries := s.catalog.ForCountry(country)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, country)
	}
	if logger.BatchID(ctx) == "" {
		ctx = logger.WithBatchID(ctx, logger.NewBatchID(entries[0].Country, time.Now()))
	}

	panels := make([]Panel, len(entries))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e catalog.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			panels[i] = s.build(ctx, e)
		}(i, e)
	}
	wg.Wait()

	failed := 0
	for _, p := range panels {
		if p.Error != "" {
			failed++
		}
	}
	s.log.Info("panels built", append(logger.Attrs(ctx),
		"country", entries[0].Country, "panels", len(panels), "failed", failed)...)
	return panels, nil
}

// Panel builds the panel of a single country and indicator.
// A missing catalog mapping returns ErrNoIdentifier.
func (s *Service) Panel(ctx context.Context, country, indicator string) (Panel, error) {
	e, ok := s.catalog.Lookup(country, indicator)
	if !ok {
		return Panel{}, fmt.Errorf("%w: %s:%s", ErrNoIdentifier, country, indicator)
	}
	return s.build(ctx, e), nil
}

func (s *Service) build(ctx context.Context, e catalog.Entry) Panel {
	p := Panel{
		Country:   e.Country,
		Indicator: e.Indicator,
		SeriesID:  e.SeriesID,
		Title:     e.Title,
		Units:     e.Units,
		Series:    model.Series{Key: e.Key(), ID: e.SeriesID, Points: []model.Point{}},
	}

	res, err := s.cache.GetOrFetch(ctx, e.Key(), s.ttl)
	if err != nil {
		p.Error = err.Error()
		s.log.Warn("series unavailable", append(logger.Attrs(ctx), "key", e.Key().String(), "error", err)...)
		return p
	}

	p.Series = res.Series
	if p.Series.Points == nil {
		p.Series.Points = []model.Point{}
	}
	p.FetchedAt = res.FetchedAt
	p.Stale = res.Stale
	if latest, ok := res.Series.Latest(); ok {
		p.Latest = &latest
	} else {
		p.Empty = true
		return p
	}

	if res.Decomposition != nil && res.Decomposition.Lambda == s.lambda {
		p.Decomposition = res.Decomposition
		return p
	}
	dec, err := hpfilter.Decompose(res.Series, s.lambda)
	if err != nil {
		s.log.Debug("decomposition skipped", append(logger.Attrs(ctx), "key", e.Key().String(), "reason", err)...)
		return p
	}
	p.Decomposition = &dec
	return p
}
