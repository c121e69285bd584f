package fred

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"macrodash/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/fred/series/observations", APIKey: "secret-key", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestFetch_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("series_id") != "GHACPIALLMINMEI" {
			t.Errorf("series_id: got %q", q.Get("series_id"))
		}
		if q.Get("api_key") != "secret-key" {
			t.Errorf("api_key: got %q", q.Get("api_key"))
		}
		if q.Get("file_type") != "json" {
			t.Errorf("file_type: got %q", q.Get("file_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"realtime_start":"2024-05-01","count":3,"observations":[
			{"realtime_start":"2024-05-01","date":"2024-01-01","value":"2.1"},
			{"realtime_start":"2024-05-01","date":"2024-02-01","value":"."},
			{"realtime_start":"2024-05-01","date":"2024-03-01","value":"2.4"}]}`))
	})

	obs, err := c.Fetch(context.Background(), "GHACPIALLMINMEI")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []model.Observation{
		{Date: "2024-01-01", Value: "2.1"},
		{Date: "2024-02-01", Value: "."},
		{Date: "2024-03-01", Value: "2.4"},
	}
	if len(obs) != len(want) {
		t.Fatalf("got %d observations, want %d", len(obs), len(want))
	}
	for i := range want {
		if obs[i] != want[i] {
			t.Errorf("obs[%d]: got %+v, want %+v", i, obs[i], want[i])
		}
	}
}

func TestFetch_EmptyIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[]}`))
	})

	obs, err := c.Fetch(context.Background(), "X")
	if err != nil {
		t.Fatalf("expected nil error for empty result, got %v", err)
	}
	if obs == nil || len(obs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", obs)
	}
}

func TestFetch_MalformedBodyTreatedAsEmpty(t *testing.T) {
	for _, body := range []string{`<html>oops</html>`, `{"observations":`, `"text"`, `null`} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		obs, err := c.Fetch(context.Background(), "X")
		if err != nil {
			t.Errorf("body %q: expected nil error, got %v", body, err)
		}
		if len(obs) != 0 {
			t.Errorf("body %q: expected no observations, got %d", body, len(obs))
		}
	}
}

func TestFetch_EmptyIdentifier(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	if _, err := c.Fetch(context.Background(), "  "); !errors.Is(err, ErrEmptyIdentifier) {
		t.Errorf("expected ErrEmptyIdentifier, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("empty identifier must not reach the network")
	}
}

func TestFetch_BadStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_code":400,"error_message":"Bad Request.  The series does not exist."}`))
	})

	_, err := c.Fetch(context.Background(), "NOPE")
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("bad status must not match ErrUnreachable")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusBadRequest || fe.SeriesID != "NOPE" {
		t.Errorf("got status=%d id=%q", fe.StatusCode, fe.SeriesID)
	}
	if !strings.Contains(fe.Message, "does not exist") {
		t.Errorf("expected provider message, got %q", fe.Message)
	}
}

func TestFetch_Unreachable(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Fetch(context.Background(), "X")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Errorf("api key leaked into error: %v", err)
	}
}

func TestFetch_TimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	_, err = c.Fetch(context.Background(), "SLOW")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable on timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not enforced: took %v", time.Since(start))
	}
}

func TestFetch_SingleAttempt(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.Fetch(context.Background(), "X"); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected exactly one request, got %d", n)
	}
}
