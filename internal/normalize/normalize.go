// Package normalize turns raw provider observations into a canonical series.
//
// Normalization never fails. A record whose date cannot be parsed is dropped,
// because it cannot be placed in the ordered sequence. A record whose value
// cannot be parsed is kept as a missing point so the dates stay aligned.
//
// Duplicate dates are not collapsed. The output keeps them adjacent in
// provider order (the sort is stable), so a consumer that indexes the series
// by date sees the last-seen value win.
package normalize

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"macrodash/internal/model"
)

// Normalize converts observations into points sorted ascending by date.
func Normalize(obs []model.Observation) []model.Point {
	points := make([]model.Point, 0, len(obs))
	for _, o := range obs {
		date, ok := ParseDate(o.Date)
		if !ok {
			continue
		}
		v, valid := ParseValue(o.Value)
		points = append(points, model.Point{Date: date, Value: v, Valid: valid})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points
}

// Series normalizes observations into a canonical series for key and id.
func Series(key model.Key, id model.SeriesID, obs []model.Observation) model.Series {
	return model.Series{Key: key, ID: id, Points: Normalize(obs)}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ParseValue parses a decimal number. Anything else, including the
// provider's "." placeholder and values outside the float64 range, is
// reported as missing.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	v := d.InexactFloat64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
