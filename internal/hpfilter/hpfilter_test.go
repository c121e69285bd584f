package hpfilter

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"macrodash/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func monthly(values ...float64) model.Series {
	s := model.Series{Key: model.Key{Entity: "GH", Indicator: "inflation"}}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		p := model.Point{Date: start.AddDate(0, i, 0), Value: v, Valid: !math.IsNaN(v)}
		if !p.Valid {
			p.Value = 0
		}
		s.Points = append(s.Points, p)
	}
	return s
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

// denseSolve solves (I + λKᵀK) x = y with Gaussian elimination as a reference.
func denseSolve(y []float64, lambda float64) []float64 {
	n := len(y)
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n+1)
		a[i][i] = 1
		a[i][n] = y[i]
	}
	for r := 0; r < n-2; r++ {
		k := map[int]float64{r: 1, r + 1: -2, r + 2: 1}
		for i, ki := range k {
			for j, kj := range k {
				a[i][j] += lambda * ki * kj
			}
		}
	}
	for c := 0; c < n; c++ {
		for r := c + 1; r < n; r++ {
			m := a[r][c] / a[c][c]
			for k := c; k <= n; k++ {
				a[r][k] -= m * a[c][k]
			}
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := a[r][n]
		for k := r + 1; k < n; k++ {
			s -= a[r][k] * x[k]
		}
		x[r] = s / a[r][r]
	}
	return x
}

// ────────────────────────────────────────────────────────────
// Correctness
// ────────────────────────────────────────────────────────────

func TestDecompose_ConstantSeries(t *testing.T) {
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = 5.0
	}

	dec, err := Decompose(monthly(vals...), DefaultLambda)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if dec.Len() != 12 {
		t.Fatalf("expected 12 points, got %d", dec.Len())
	}
	for i := range vals {
		assertClose(t, "trend", dec.Trend[i], 5.0, 1e-9)
		assertClose(t, "cycle", dec.Cycle[i], 0.0, 1e-9)
	}
}

func TestFilter_LinearSeriesIsItsOwnTrend(t *testing.T) {
	y := make([]float64, 20)
	for i := range y {
		y[i] = 1.5 + 0.25*float64(i)
	}
	trend, cycle, err := Filter(y, 1600)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	for i := range y {
		assertClose(t, "trend", trend[i], y[i], 1e-8)
		assertClose(t, "cycle", cycle[i], 0, 1e-8)
	}
}

func TestFilter_MatchesDenseSolve(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{5, 6, 7, 12, 40} {
		y := make([]float64, n)
		for i := range y {
			y[i] = 10 + rng.NormFloat64()*3
		}
		for _, lambda := range []float64{DefaultLambda, 1, 129600} {
			trend, _, err := Filter(y, lambda)
			if err != nil {
				t.Fatalf("n=%d λ=%v: %v", n, lambda, err)
			}
			want := denseSolve(y, lambda)
			for i := range want {
				assertClose(t, "trend vs dense", trend[i], want[i], 1e-7)
			}
		}
	}
}

func TestFilter_TrendPlusCycleIsInput(t *testing.T) {
	y := []float64{2.1, 2.4, 2.2, 3.0, 2.8, 2.5, 3.3}
	orig := append([]float64(nil), y...)

	trend, cycle, err := Filter(y, DefaultLambda)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	for i := range y {
		assertClose(t, "trend+cycle", trend[i]+cycle[i], orig[i], 1e-12)
		if y[i] != orig[i] {
			t.Fatal("input was mutated")
		}
	}
}

// ────────────────────────────────────────────────────────────
// Preconditions
// ────────────────────────────────────────────────────────────

func TestDecompose_InsufficientData(t *testing.T) {
	nan := math.NaN()
	cases := map[string]model.Series{
		"empty":                 monthly(),
		"one":                   monthly(1),
		"four":                  monthly(1, 2, 3, 4),
		"five with one missing": monthly(1, nan, 3, 4, 5),
		"scenario":              monthly(2.1, nan, 2.4),
		"all missing":           monthly(nan, nan, nan, nan, nan, nan),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			dec, err := Decompose(s, DefaultLambda)
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("expected ErrInsufficientData, got %v", err)
			}
			if dec.Trend != nil || dec.Cycle != nil || dec.Dates != nil {
				t.Errorf("expected no partial output, got %+v", dec)
			}
		})
	}
}

func TestDecompose_InvalidLambda(t *testing.T) {
	s := monthly(1, 2, 3, 4, 5)
	for _, l := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := Decompose(s, l); !errors.Is(err, ErrInvalidLambda) {
			t.Errorf("λ=%v: expected ErrInvalidLambda, got %v", l, err)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Alignment
// ────────────────────────────────────────────────────────────

func TestDecompose_SkipsMissingDates(t *testing.T) {
	nan := math.NaN()
	s := monthly(1, nan, 2, 3, nan, 4, 5)

	dec, err := Decompose(s, DefaultLambda)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(dec.Dates) != 5 || len(dec.Trend) != 5 || len(dec.Cycle) != 5 {
		t.Fatalf("lengths: dates=%d trend=%d cycle=%d, want 5", len(dec.Dates), len(dec.Trend), len(dec.Cycle))
	}
	for _, d := range dec.Dates {
		if d.Equal(s.Points[1].Date) || d.Equal(s.Points[4].Date) {
			t.Errorf("missing date %v appears in decomposition", d)
		}
	}
	if dec.Lambda != DefaultLambda {
		t.Errorf("lambda: got %v", dec.Lambda)
	}
}

func TestDecompose_LengthProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(40)
		vals := make([]float64, n)
		valid := 0
		for i := range vals {
			if rng.Intn(4) == 0 {
				vals[i] = math.NaN()
				continue
			}
			vals[i] = rng.Float64() * 100
			valid++
		}

		dec, err := Decompose(monthly(vals...), DefaultLambda)
		if valid < MinPoints {
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("valid=%d: expected ErrInsufficientData, got %v", valid, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("valid=%d: %v", valid, err)
		}
		if len(dec.Trend) != valid || len(dec.Cycle) != valid || len(dec.Dates) != valid {
			t.Fatalf("valid=%d: trend=%d cycle=%d dates=%d", valid, len(dec.Trend), len(dec.Cycle), len(dec.Dates))
		}
	}
}
