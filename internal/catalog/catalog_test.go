package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Complete(t *testing.T) {
	c := Default()
	if c.Len() != len(builtin) {
		t.Fatalf("expected %d entries, got %d", len(builtin), c.Len())
	}
	for _, e := range c.Entries() {
		if e.Title == "" || e.Units == "" {
			t.Errorf("%s: missing title or units", e.Key())
		}
	}

	// Every country shown on the dashboard carries inflation.
	for _, country := range c.Countries() {
		if _, ok := c.IdentifierFor(country, Inflation); !ok {
			t.Errorf("%s has no inflation series", country)
		}
	}
}

func TestIdentifierFor(t *testing.T) {
	c := Default()

	id, ok := c.IdentifierFor("GH", Inflation)
	if !ok || id != "GHACPIALLMINMEI" {
		t.Errorf("GH inflation: got (%q, %v)", id, ok)
	}

	// Lookup is case-insensitive on both parts.
	id, ok = c.IdentifierFor(" gh ", "INFLATION")
	if !ok || id != "GHACPIALLMINMEI" {
		t.Errorf("normalized lookup: got (%q, %v)", id, ok)
	}

	id, ok = c.IdentifierFor("GH", Unemployment)
	if ok || id != "" {
		t.Errorf("missing mapping: got (%q, %v), want (\"\", false)", id, ok)
	}
	if _, ok := c.IdentifierFor("XX", Inflation); ok {
		t.Error("unknown country should be absent")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"no country", []Entry{{Indicator: Inflation, SeriesID: "X"}}},
		{"no indicator", []Entry{{Country: "GH", SeriesID: "X"}}},
		{"no series id", []Entry{{Country: "GH", Indicator: Inflation, SeriesID: "  "}}},
		{"duplicate", []Entry{
			{Country: "GH", Indicator: Inflation, SeriesID: "A"},
			{Country: "gh", Indicator: "Inflation", SeriesID: "B"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestOrdering(t *testing.T) {
	c, err := New([]Entry{
		{Country: "ZA", Indicator: "b", SeriesID: "1"},
		{Country: "GH", Indicator: "z", SeriesID: "2"},
		{Country: "ZA", Indicator: "a", SeriesID: "3"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	countries := c.Countries()
	if len(countries) != 2 || countries[0] != "GH" || countries[1] != "ZA" {
		t.Errorf("countries: got %v", countries)
	}
	za := c.ForCountry("za")
	if len(za) != 2 || za[0].Indicator != "a" || za[1].Indicator != "b" {
		t.Errorf("ForCountry(za): got %+v", za)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(`[{"country":"KE","indicator":"inflation","series_id":"KENCPI"}]`), 0o644)
	c, err := LoadFile(good)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if id, ok := c.IdentifierFor("KE", Inflation); !ok || id != "KENCPI" {
		t.Errorf("got (%q, %v)", id, ok)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{not json`), 0o644)
	if _, err := LoadFile(bad); !errors.Is(err, ErrInvalidCatalog) {
		t.Errorf("expected ErrInvalidCatalog for malformed file, got %v", err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
