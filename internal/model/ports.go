package model

import (
	"context"
	"time"
)

// ── Pipeline Port Interfaces ──
// These interfaces decouple the series pipeline from concrete transports
// and sinks (FRED over HTTP, CSV files, SQLite, Redis).

// ObservationFetcher retrieves the raw observations of one provider series.
type ObservationFetcher interface {
	// Fetch performs a single bounded attempt. An empty result with a nil
	// error means the provider has no data for id.
	Fetch(ctx context.Context, id SeriesID) ([]Observation, error)
}

// Export is the payload handed to export sinks after a successful refresh.
type Export struct {
	Series    Series
	FetchedAt time.Time

	// Decomposition is nil when the series was too short to decompose.
	Decomposition *Decomposition
}

// Exporter writes a refreshed series somewhere external consumers can read it.
// Exports are best-effort: callers log and swallow the returned error.
type Exporter interface {
	Export(ctx context.Context, e Export) error
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(ctx context.Context, e Export) error

// Export calls f(ctx, e).
func (f ExporterFunc) Export(ctx context.Context, e Export) error { return f(ctx, e) }

// SeriesSink is an Exporter that holds external resources.
type SeriesSink interface {
	Exporter

	// Name is used as the metrics label for export failures.
	Name() string

	// Close releases underlying resources.
	Close() error
}
