// Package api provides the HTTP JSON endpoints the dashboard reads.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"macrodash/internal/dashboard"
	"macrodash/internal/gateway"
	"macrodash/internal/market"
	"macrodash/internal/metrics"
)

// Deps are the services behind the routes. Hub, GSE and Metrics are optional.
type Deps struct {
	Dashboard *dashboard.Service
	GSE       *market.GSE
	Hub       *gateway.Hub
	Metrics   *metrics.Metrics
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// GET /api/v1/catalog
	mux.HandleFunc("/api/v1/catalog", get(func(w http.ResponseWriter, r *http.Request) {
		cat := d.Dashboard.Catalog()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"countries": cat.Countries(),
			"entries":   cat.Entries(),
		})
	}))

	// GET /api/v1/countries/panels?country=GH
	mux.HandleFunc("/api/v1/countries/panels", get(func(w http.ResponseWriter, r *http.Request) {
		country := strings.TrimSpace(r.URL.Query().Get("country"))
		if country == "" {
			writeError(w, http.StatusBadRequest, "country is required")
			return
		}
		panels, err := d.Dashboard.Panels(r.Context(), country)
		if errors.Is(err, dashboard.ErrUnknownCountry) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"country": strings.ToUpper(country),
			"panels":  panels,
		})
	}))

	// GET /api/v1/series?country=GH&indicator=inflation
	mux.HandleFunc("/api/v1/series", get(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		country, indicator := strings.TrimSpace(q.Get("country")), strings.TrimSpace(q.Get("indicator"))
		if country == "" || indicator == "" {
			writeError(w, http.StatusBadRequest, "country and indicator are required")
			return
		}
		panel, err := d.Dashboard.Panel(r.Context(), country, indicator)
		if errors.Is(err, dashboard.ErrNoIdentifier) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, panel)
	}))

	// GET /api/v1/market/gse
	mux.HandleFunc("/api/v1/market/gse", get(func(w http.ResponseWriter, r *http.Request) {
		if d.GSE == nil {
			writeError(w, http.StatusServiceUnavailable, "gse source not configured")
			return
		}
		snap, err := d.GSE.Snapshot(r.Context())
		if err != nil {
			slog.Warn("gse snapshot failed", "error", err)
			writeJSON(w, http.StatusOK, market.Snapshot{Stocks: []market.Stock{}})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}))

	// GET /api/v1/market/banks
	mux.HandleFunc("/api/v1/market/banks", get(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, market.Banks())
	}))

	if d.Hub != nil {
		gateway.RegisterRoutes(mux, d.Hub)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}
	return mux
}

// get wraps h with CORS headers and rejects everything but GET and OPTIONS.
func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gateway.SetCORS(w)
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// writeJSON encodes before writing the status so an unencodable body
// becomes a 500 rather than an empty 200.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
