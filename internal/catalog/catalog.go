// Package catalog maps (country, indicator) pairs to provider series
// identifiers. The table is validated once at load time and is read-only
// afterwards, so lookups need no locking.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"macrodash/internal/model"
)

// ErrInvalidCatalog is returned when a table fails load-time validation.
var ErrInvalidCatalog = errors.New("catalog: invalid table")

// Indicator names used by the built-in table.
const (
	Inflation    = "inflation"
	InterestRate = "interest_rate"
	ExchangeRate = "exchange_rate"
	Unemployment = "unemployment"
)

// Entry is one row of the catalog.
type Entry struct {
	Country   string         `json:"country"`
	Indicator string         `json:"indicator"`
	SeriesID  model.SeriesID `json:"series_id"`
	Title     string         `json:"title,omitempty"`
	Units     string         `json:"units,omitempty"`
}

// Key returns the cache/export key for this entry.
func (e Entry) Key() model.Key {
	return model.Key{Entity: e.Country, Indicator: e.Indicator}
}

// Catalog is an immutable, validated lookup table.
type Catalog struct {
	entries []Entry
	index   map[model.Key]Entry
}

// New validates entries and builds a Catalog. Country and indicator names
// are trimmed; countries are upper-cased and indicators lower-cased.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[model.Key]Entry, len(entries)),
	}
	var errs error
	for i, e := range entries {
		e.Country = strings.ToUpper(strings.TrimSpace(e.Country))
		e.Indicator = strings.ToLower(strings.TrimSpace(e.Indicator))
		e.SeriesID = model.SeriesID(strings.TrimSpace(string(e.SeriesID)))

		switch {
		case e.Country == "":
			errs = errors.Join(errs, fmt.Errorf("%w: entry %d has no country", ErrInvalidCatalog, i))
			continue
		case e.Indicator == "":
			errs = errors.Join(errs, fmt.Errorf("%w: entry %d (%s) has no indicator", ErrInvalidCatalog, i, e.Country))
			continue
		case e.SeriesID == "":
			errs = errors.Join(errs, fmt.Errorf("%w: %s has no series id", ErrInvalidCatalog, e.Key()))
			continue
		}
		if _, dup := c.index[e.Key()]; dup {
			errs = errors.Join(errs, fmt.Errorf("%w: duplicate entry %s", ErrInvalidCatalog, e.Key()))
			continue
		}
		c.index[e.Key()] = e
		c.entries = append(c.entries, e)
	}
	if errs != nil {
		return nil, errs
	}

	sort.Slice(c.entries, func(i, j int) bool {
		if c.entries[i].Country != c.entries[j].Country {
			return c.entries[i].Country < c.entries[j].Country
		}
		return c.entries[i].Indicator < c.entries[j].Indicator
	})
	return c, nil
}

// LoadFile reads a JSON array of entries and validates it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidCatalog, path, err)
	}
	return New(entries)
}

// IdentifierFor returns the series identifier for a country and indicator.
// A missing mapping is a normal result: ("", false).
func (c *Catalog) IdentifierFor(country, indicator string) (model.SeriesID, bool) {
	e, ok := c.Lookup(country, indicator)
	return e.SeriesID, ok
}

// Lookup returns the full entry for a country and indicator.
func (c *Catalog) Lookup(country, indicator string) (Entry, bool) {
	e, ok := c.index[model.Key{
		Entity:    strings.ToUpper(strings.TrimSpace(country)),
		Indicator: strings.ToLower(strings.TrimSpace(indicator)),
	}]
	return e, ok
}

// Entries returns every entry ordered by country then indicator.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ForCountry returns the entries of one country, ordered by indicator.
func (c *Catalog) ForCountry(country string) []Entry {
	country = strings.ToUpper(strings.TrimSpace(country))
	var out []Entry
	for _, e := range c.entries {
		if e.Country == country {
			out = append(out, e)
		}
	}
	return out
}

// Countries returns the distinct countries in sorted order.
func (c *Catalog) Countries() []string {
	var out []string
	for _, e := range c.entries {
		if len(out) == 0 || out[len(out)-1] != e.Country {
			out = append(out, e.Country)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }
