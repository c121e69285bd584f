package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"macrodash/internal/model"
)

// Reader provides read-only access to exported series.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Stored is one exported series as read back from SQLite.
type Stored struct {
	Series    model.Series
	Trend     []sql.NullFloat64
	Cycle     []sql.NullFloat64
	Lambda    float64 // 0 when no decomposition was stored
	FetchedAt time.Time
}

// ReadSeries returns the last export for key in canonical order.
// ok is false when nothing was exported for key.
func (r *Reader) ReadSeries(ctx context.Context, key model.Key) (Stored, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT series_id, date, value, trend, cycle, lambda, fetched_at
		FROM series_points
		WHERE entity = ? AND indicator = ?
		ORDER BY seq ASC
	`, key.Entity, key.Indicator)
	if err != nil {
		return Stored{}, false, fmt.Errorf("sqlite query series_points: %w", err)
	}
	defer rows.Close()

	out := Stored{Series: model.Series{Key: key}}
	for rows.Next() {
		var (
			id, date     string
			value        sql.NullFloat64
			trend, cycle sql.NullFloat64
			lambda       sql.NullFloat64
			fetched      int64
		)
		if err := rows.Scan(&id, &date, &value, &trend, &cycle, &lambda, &fetched); err != nil {
			return Stored{}, false, fmt.Errorf("sqlite scan series_points: %w", err)
		}
		d, err := time.Parse(model.DateLayout, date)
		if err != nil {
			return Stored{}, false, fmt.Errorf("sqlite bad date %q: %w", date, err)
		}
		out.Series.ID = model.SeriesID(id)
		out.Series.Points = append(out.Series.Points, model.Point{Date: d, Value: value.Float64, Valid: value.Valid})
		out.Trend = append(out.Trend, trend)
		out.Cycle = append(out.Cycle, cycle)
		if lambda.Valid {
			out.Lambda = lambda.Float64
		}
		out.FetchedAt = time.Unix(fetched, 0).UTC()
	}
	if err := rows.Err(); err != nil {
		return Stored{}, false, err
	}
	return out, len(out.Series.Points) > 0, nil
}

// ReadExport returns the last export for key in the shape it was written.
// The decomposition is rebuilt from the trend and cycle columns of the
// non-missing points and left nil when those columns are empty.
func (r *Reader) ReadExport(ctx context.Context, key model.Key) (model.Export, bool, error) {
	st, ok, err := r.ReadSeries(ctx, key)
	if err != nil || !ok {
		return model.Export{}, ok, err
	}
	e := model.Export{Series: st.Series, FetchedAt: st.FetchedAt}

	dec := model.Decomposition{Lambda: st.Lambda}
	for i, p := range st.Series.Points {
		if !p.Valid {
			continue
		}
		if !st.Trend[i].Valid || !st.Cycle[i].Valid {
			return e, true, nil
		}
		dec.Dates = append(dec.Dates, p.Date)
		dec.Trend = append(dec.Trend, st.Trend[i].Float64)
		dec.Cycle = append(dec.Cycle, st.Cycle[i].Float64)
	}
	if dec.Len() > 0 {
		e.Decomposition = &dec
	}
	return e, true, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
