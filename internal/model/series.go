package model

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout used on the wire and in exports.
const DateLayout = "2006-01-02"

// SeriesID is the opaque identifier a statistics provider issues for one series.
type SeriesID string

// Observation is a single raw record as returned by the provider.
// Both fields are untrusted strings; Value "." means "no data" upstream.
type Observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Key identifies a series by the entity it describes and the indicator name.
type Key struct {
	Entity    string `json:"entity"`
	Indicator string `json:"indicator"`
}

// String returns "entity:indicator".
func (k Key) String() string {
	return k.Entity + ":" + k.Indicator
}

// Slug returns a lowercase, filesystem-safe "entity_indicator" name.
func (k Key) Slug() string {
	return slugPart(k.Entity) + "_" + slugPart(k.Indicator)
}

func slugPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Point is one canonical (date, value) entry. Valid is false when the
// provider value could not be coerced to a number.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Valid bool      `json:"valid"`
}

// MarshalJSON renders the date as YYYY-MM-DD and a missing value as null.
func (p Point) MarshalJSON() ([]byte, error) {
	var v *float64
	if p.Valid {
		val := p.Value
		v = &val
	}
	return json.Marshal(struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	}{p.Date.Format(DateLayout), v})
}

// UnmarshalJSON is the inverse of MarshalJSON; a null value decodes as missing.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return err
	}
	*p = Point{Date: d}
	if raw.Value != nil {
		p.Value, p.Valid = *raw.Value, true
	}
	return nil
}

// Series is a canonical series: ascending by date, missing values kept
// in place so dates stay aligned with the provider's calendar.
type Series struct {
	Key    Key      `json:"key"`
	ID     SeriesID `json:"series_id"`
	Points []Point  `json:"points"`
}

// Len returns the number of points, missing ones included.
func (s Series) Len() int { return len(s.Points) }

// ValidCount returns the number of non-missing points.
func (s Series) ValidCount() int {
	n := 0
	for _, p := range s.Points {
		if p.Valid {
			n++
		}
	}
	return n
}

// Values returns the dates and values of the non-missing points only.
func (s Series) Values() ([]time.Time, []float64) {
	n := s.ValidCount()
	dates := make([]time.Time, 0, n)
	values := make([]float64, 0, n)
	for _, p := range s.Points {
		if !p.Valid {
			continue
		}
		dates = append(dates, p.Date)
		values = append(values, p.Value)
	}
	return dates, values
}

// Latest returns the last non-missing point.
func (s Series) Latest() (Point, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Valid {
			return s.Points[i], true
		}
	}
	return Point{}, false
}

// Clone returns a deep copy so callers never share the backing slice.
func (s Series) Clone() Series {
	out := s
	if s.Points != nil {
		out.Points = make([]Point, len(s.Points))
		copy(out.Points, s.Points)
	}
	return out
}

// Decomposition holds the trend and cycle of a series' non-missing points.
// Dates, Trend and Cycle always have the same length.
type Decomposition struct {
	Dates  []time.Time `json:"-"`
	Trend  []float64   `json:"trend"`
	Cycle  []float64   `json:"cycle"`
	Lambda float64     `json:"lambda"`
}

// Len returns the number of decomposed points.
func (d Decomposition) Len() int { return len(d.Trend) }

// Clone returns a deep copy; nil stays nil.
func (d *Decomposition) Clone() *Decomposition {
	if d == nil {
		return nil
	}
	return &Decomposition{
		Dates:  append([]time.Time(nil), d.Dates...),
		Trend:  append([]float64(nil), d.Trend...),
		Cycle:  append([]float64(nil), d.Cycle...),
		Lambda: d.Lambda,
	}
}

// MarshalJSON renders dates as YYYY-MM-DD.
func (d Decomposition) MarshalJSON() ([]byte, error) {
	dates := make([]string, len(d.Dates))
	for i, t := range d.Dates {
		dates[i] = t.Format(DateLayout)
	}
	return json.Marshal(struct {
		Dates  []string  `json:"dates"`
		Trend  []float64 `json:"trend"`
		Cycle  []float64 `json:"cycle"`
		Lambda float64   `json:"lambda"`
	}{dates, d.Trend, d.Cycle, d.Lambda})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Decomposition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dates  []string  `json:"dates"`
		Trend  []float64 `json:"trend"`
		Cycle  []float64 `json:"cycle"`
		Lambda float64   `json:"lambda"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Decomposition{Trend: raw.Trend, Cycle: raw.Cycle, Lambda: raw.Lambda}
	if raw.Dates != nil {
		out.Dates = make([]time.Time, len(raw.Dates))
		for i, s := range raw.Dates {
			t, err := time.Parse(DateLayout, s)
			if err != nil {
				return err
			}
			out.Dates[i] = t
		}
	}
	*d = out
	return nil
}
