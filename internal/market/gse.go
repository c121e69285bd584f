// Package market serves the Ghana Stock Exchange snapshot and the static
// bank product table shown next to the macro panels.
package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"macrodash/internal/export"
)

const (
	// TopStocks is how many rows of the exchange sheet are kept.
	TopStocks = 10

	// GSEFile is the export file name inside the export directory.
	GSEFile = "gse_stocks.csv"

	defaultGSETTL     = time.Hour
	defaultGSETimeout = 15 * time.Second
)

// ErrMissingColumn means the sheet lacks one of stock, price or ytd_return.
var ErrMissingColumn = errors.New("market: missing column")

// Stock is one row of the exchange sheet. Price and YTDReturn are invalid
// when the cell is not a number.
type Stock struct {
	Name      string              `json:"stock"`
	Price     decimal.NullDecimal `json:"price"`
	YTDReturn decimal.NullDecimal `json:"ytd_return"`
}

// ParseGSE reads the exchange CSV and keeps the first TopStocks rows.
// Columns are located by header name, case-insensitively.
func ParseGSE(r io.Reader) ([]Stock, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("market: read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := [3]int{}
	for i, name := range []string{"stock", "price", "ytd_return"} {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		cols[i] = c
	}

	stocks := make([]Stock, 0, TopStocks)
	for len(stocks) < TopStocks {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("market: read row %d: %w", len(stocks)+1, err)
		}
		stocks = append(stocks, Stock{
			Name:      cell(rec, cols[0]),
			Price:     parseDecimal(cell(rec, cols[1])),
			YTDReturn: parseDecimal(cell(rec, cols[2])),
		})
	}
	return stocks, nil
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseDecimal accepts plain numbers with optional thousands separators
// and a trailing percent sign.
func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSuffix(strings.ReplaceAll(s, ",", ""), "%")
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// GSERows renders stocks for CSV export.
func GSERows(stocks []Stock) ([]string, [][]string) {
	rows := make([][]string, len(stocks))
	for i, s := range stocks {
		rows[i] = []string{s.Name, nullString(s.Price), nullString(s.YTDReturn)}
	}
	return []string{"stock", "price", "ytd_return"}, rows
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// GSEConfig configures a GSE snapshot source.
type GSEConfig struct {
	URL        string
	TTL        time.Duration
	HTTPClient *http.Client
	Clock      clockwork.Clock

	// ExportDir receives gse_stocks.csv after each successful fetch; empty disables it.
	ExportDir string
	Logger    *slog.Logger
}

// GSE fetches and memoizes the exchange snapshot.
type GSE struct {
	url    string
	ttl    time.Duration
	client *http.Client
	clock  clockwork.Clock
	dir    string
	log    *slog.Logger

	mu        sync.Mutex
	stocks    []Stock
	fetchedAt time.Time
}

// Snapshot is the result of GSE.Snapshot.
type Snapshot struct {
	Stocks    []Stock   `json:"stocks"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// NewGSE creates a snapshot source.
func NewGSE(cfg GSEConfig) *GSE {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultGSETTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultGSETimeout}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &GSE{
		url:    cfg.URL,
		ttl:    cfg.TTL,
		client: cfg.HTTPClient,
		clock:  cfg.Clock,
		dir:    cfg.ExportDir,
		log:    lg.With(slog.String("component", "gse")),
	}
}

// Snapshot returns the memoized sheet while younger than the ttl, otherwise
// refetches. A failed refetch serves the previous sheet marked stale; with
// nothing to fall back on the error is returned.
func (g *GSE) Snapshot(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stocks != nil && g.clock.Since(g.fetchedAt) < g.ttl {
		return Snapshot{Stocks: g.copyStocks(), FetchedAt: g.fetchedAt}, nil
	}

	stocks, err := g.fetch(ctx)
	if err != nil {
		if g.stocks != nil {
			g.log.Warn("gse refresh failed, serving stale sheet", "error", err)
			return Snapshot{Stocks: g.copyStocks(), FetchedAt: g.fetchedAt, Stale: true}, nil
		}
		return Snapshot{}, err
	}
	g.stocks, g.fetchedAt = stocks, g.clock.Now()

	if g.dir != "" {
		header, rows := GSERows(stocks)
		if err := export.WriteCSV(filepath.Join(g.dir, GSEFile), header, rows); err != nil {
			g.log.Warn("gse export failed", "error", err)
		}
	}
	return Snapshot{Stocks: g.copyStocks(), FetchedAt: g.fetchedAt}, nil
}

func (g *GSE) copyStocks() []Stock {
	return append([]Stock(nil), g.stocks...)
}

func (g *GSE) fetch(ctx context.Context) ([]Stock, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: fetch gse: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("market: fetch gse: status %s", resp.Status)
	}
	return ParseGSE(resp.Body)
}
