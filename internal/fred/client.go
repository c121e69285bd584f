// Package fred fetches series observations from the FRED observation endpoint.
//
// A Client makes exactly one bounded HTTP attempt per call. It never caches
// and never touches disk; retries happen one level up, when the dashboard
// asks for the series again.
package fred

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"macrodash/internal/metrics"
	"macrodash/internal/model"
)

const (
	defaultBaseURL   = "https://api.stlouisfed.org/fred/series/observations"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "macrodash/0.1"
	maxBodyBytes     = 32 << 20
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the transport; its Timeout is replaced by Timeout.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Client is a FRED observations client. It is safe for concurrent use.
type Client struct {
	config  Config
	client  *http.Client
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fred: invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		hc = &c
	}
	hc.Timeout = cfg.Timeout

	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Client{
		config:  cfg,
		client:  hc,
		metrics: cfg.Metrics,
		log:     lg.With(slog.String("component", "fred")),
	}, nil
}

// observationsResponse is the subset of the FRED JSON body we read.
type observationsResponse struct {
	Observations []model.Observation `json:"observations"`
}

type errorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Fetch retrieves all observations of one series.
//
// Transport failures and non-2xx responses return a *FetchError. A body that
// cannot be decoded is logged and treated as an empty result, as is a body
// with no observations: both mean "no data available", not failure.
func (c *Client) Fetch(ctx context.Context, id model.SeriesID) ([]model.Observation, error) {
	id = model.SeriesID(strings.TrimSpace(string(id)))
	if id == "" {
		return nil, ErrEmptyIdentifier
	}

	start := time.Now()
	body, err := c.get(ctx, id)
	if err != nil {
		result := metrics.FetchUnreachable
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == BadStatus {
			result = metrics.FetchBadStatus
		}
		c.metrics.ObserveFetch(result, time.Since(start))
		c.log.Warn("series fetch failed", "series_id", string(id), "error", err)
		return nil, err
	}

	var resp observationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.IncParseError()
		c.metrics.ObserveFetch(metrics.FetchEmpty, time.Since(start))
		c.log.Warn("malformed observations body, treating as empty",
			"series_id", string(id), "error", err, "bytes", len(body))
		return []model.Observation{}, nil
	}

	result := metrics.FetchOK
	if len(resp.Observations) == 0 {
		result = metrics.FetchEmpty
	}
	c.metrics.ObserveFetch(result, time.Since(start))
	c.log.Debug("series fetched", "series_id", string(id),
		"observations", len(resp.Observations), "elapsed", time.Since(start))

	if resp.Observations == nil {
		return []model.Observation{}, nil
	}
	return resp.Observations, nil
}

func (c *Client) get(ctx context.Context, id model.SeriesID) ([]byte, error) {
	endpoint, err := c.buildURL(id)
	if err != nil {
		return nil, &FetchError{Kind: Unreachable, SeriesID: id, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: Unreachable, SeriesID: id, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: Unreachable, SeriesID: id, Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: Unreachable, SeriesID: id, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		fe := &FetchError{
			Kind:       BadStatus,
			SeriesID:   id,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
		var er errorResponse
		if json.Unmarshal(bytes.TrimSpace(body), &er) == nil {
			fe.Message = er.ErrorMessage
		}
		return nil, fe
	}
	return body, nil
}

func (c *Client) buildURL(id model.SeriesID) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("series_id", string(id))
	q.Set("api_key", c.config.APIKey)
	q.Set("file_type", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the api key from *url.Error messages.
func redact(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	uerr.URL = u.String()
	return uerr
}
