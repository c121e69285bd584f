package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"macrodash/internal/hpfilter"
	"macrodash/internal/metrics"
	"macrodash/internal/model"
)

// Fanout decomposes a refreshed series once and hands it to every sink.
// One failing sink does not stop the others; all failures are joined.
type Fanout struct {
	sinks   []model.SeriesSink
	lambda  float64
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewFanout creates a Fanout. lambda <= 0 uses hpfilter.DefaultLambda.
func NewFanout(lambda float64, m *metrics.Metrics, sinks ...model.SeriesSink) *Fanout {
	if lambda <= 0 {
		lambda = hpfilter.DefaultLambda
	}
	return &Fanout{
		sinks:   sinks,
		lambda:  lambda,
		metrics: m,
		log:     slog.Default().With(slog.String("component", "export")),
	}
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Export implements model.Exporter.
func (f *Fanout) Export(ctx context.Context, e model.Export) error {
	if e.Decomposition == nil {
		dec, err := hpfilter.Decompose(e.Series, f.lambda)
		if err != nil {
			f.metrics.IncDecomposeSkipped()
			f.log.Debug("exporting without trend/cycle", "key", e.Series.Key.String(), "reason", err)
		} else {
			e.Decomposition = &dec
		}
	}

	var errs error
	for _, s := range f.sinks {
		start := time.Now()
		err := s.Export(ctx, e)
		f.metrics.ObserveExport(s.Name(), time.Since(start), err)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errs
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errs
}
