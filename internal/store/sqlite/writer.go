package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"macrodash/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite export sink.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/series.db"
}

// Writer mirrors every refreshed series into a series_points table so it can
// be queried with plain SQL. The server reads the last exports back at
// startup to give websocket clients initial state; the cache never does.
type Writer struct {
	db *sql.DB
}

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS series_points (
			entity     TEXT    NOT NULL,
			indicator  TEXT    NOT NULL,
			series_id  TEXT    NOT NULL,
			date       TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			value      REAL,
			trend      REAL,
			cycle      REAL,
			lambda     REAL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (entity, indicator, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_series_points_date
			ON series_points (entity, indicator, date);
	`)
	return err
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "sqlite" }

// Export replaces all stored rows for the series key in one transaction.
// seq keeps the canonical point order, so duplicate dates survive.
func (w *Writer) Export(ctx context.Context, e model.Export) error {
	start := time.Now()
	s := e.Series

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM series_points WHERE entity = ? AND indicator = ?`,
		s.Key.Entity, s.Key.Indicator,
	); err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series_points (entity, indicator, series_id, date, seq, value, trend, cycle, lambda, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	dec := e.Decomposition
	if dec != nil && dec.Len() != s.ValidCount() {
		dec = nil
	}
	var lambda sql.NullFloat64
	if dec != nil {
		lambda = sql.NullFloat64{Float64: dec.Lambda, Valid: true}
	}
	fetched := e.FetchedAt.Unix()
	j := 0
	for i, p := range s.Points {
		var value, trend, cycle sql.NullFloat64
		if p.Valid {
			value = sql.NullFloat64{Float64: p.Value, Valid: true}
			if dec != nil {
				trend = sql.NullFloat64{Float64: dec.Trend[j], Valid: true}
				cycle = sql.NullFloat64{Float64: dec.Cycle[j], Valid: true}
			}
			j++
		}
		if _, err := stmt.ExecContext(ctx,
			s.Key.Entity, s.Key.Indicator, string(s.ID), p.Date.Format(model.DateLayout), i,
			value, trend, cycle, lambda, fetched,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] stored %d points for %s in %v", len(s.Points), s.Key, time.Since(start))
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
