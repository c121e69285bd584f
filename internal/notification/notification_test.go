package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"macrodash/internal/model"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingNotifier) got() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

var ghInflation = model.Key{Entity: "GH", Indicator: "inflation"}

func TestAlerter_ThrottlesPerKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &recordingNotifier{}
	a := NewAlerter(time.Hour, clock, rec)

	if !a.Notify(Alert{Title: "first", Key: "GH:inflation"}) {
		t.Fatal("first alert should be accepted")
	}
	if a.Notify(Alert{Title: "repeat", Key: "GH:inflation"}) {
		t.Error("repeat within interval should be suppressed")
	}
	if !a.Notify(Alert{Title: "other", Key: "ZA:inflation"}) {
		t.Error("different key should not be throttled")
	}
	clock.Advance(time.Hour)
	if !a.Notify(Alert{Title: "later", Key: "GH:inflation"}) {
		t.Error("alert after interval should be accepted")
	}
	a.Close()

	got := rec.got()
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered alerts, got %d: %+v", len(got), got)
	}
	if got[0].Title != "first" || got[1].Title != "other" || got[2].Title != "later" {
		t.Errorf("unexpected delivery order: %+v", got)
	}
}

func TestAlerter_UnkeyedAlertsAreNotThrottled(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAlerter(time.Hour, clockwork.NewFakeClock(), rec)
	a.Notify(Alert{Title: "a"})
	a.Notify(Alert{Title: "b"})
	a.Close()
	if n := len(rec.got()); n != 2 {
		t.Errorf("expected 2 alerts, got %d", n)
	}
}

func TestAlerter_FailingNotifierDoesNotBlockOthers(t *testing.T) {
	bad := &recordingNotifier{err: errors.New("down")}
	good := &recordingNotifier{}
	a := NewAlerter(0, nil, bad, good)
	a.Notify(Alert{Title: "x"})
	a.Close()
	if len(good.got()) != 1 {
		t.Error("healthy notifier should still receive the alert")
	}
}

func TestAlerter_NotifyAfterClose(t *testing.T) {
	a := NewAlerter(0, nil, &recordingNotifier{})
	a.Close()
	if a.Notify(Alert{Title: "late"}) {
		t.Error("closed alerter should reject alerts")
	}
	a.Close()
}

func TestAlerter_RefreshFailedLevels(t *testing.T) {
	rec := &recordingNotifier{}
	clock := clockwork.NewFakeClock()
	a := NewAlerter(time.Minute, clock, rec)

	a.RefreshFailed(ghInflation, errors.New("timeout"), false)
	clock.Advance(time.Minute)
	a.RefreshFailed(ghInflation, errors.New("timeout"), true)
	a.Close()

	got := rec.got()
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", got)
	}
	if got[0].Level != AlertCritical || got[1].Level != AlertWarning {
		t.Errorf("levels: got %s, %s", got[0].Level, got[1].Level)
	}
	if got[0].Key != "GH:inflation" || !got[1].Stale || got[0].Stale || !strings.Contains(got[1].Message, "stale") {
		t.Errorf("unexpected alert content: %+v", got)
	}
}

func refreshAlert(t *testing.T, stale bool) Alert {
	t.Helper()
	rec := &recordingNotifier{}
	a := NewAlerter(0, clockwork.NewFakeClock(), rec)
	a.RefreshFailed(ghInflation, errors.New("fred: status 503"), stale)
	a.Close()
	got := rec.got()
	if len(got) != 1 {
		t.Fatalf("expected one alert, got %d", len(got))
	}
	return got[0]
}

func TestWebhookNotifier_SeriesPayload(t *testing.T) {
	var got []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got = append(got, p)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	for _, stale := range []bool{true, false} {
		if err := n.Send(context.Background(), refreshAlert(t, stale)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	want := WebhookPayload{
		Severity:     AlertWarning,
		Event:        EventRefreshFailed,
		Country:      "GH",
		Indicator:    "inflation",
		SeriesKey:    "GH:inflation",
		ServingStale: true,
		Summary:      "GH:inflation refresh failed",
		Detail:       "serving stale series",
		Error:        "fred: status 503",
		SentAt:       "2024-05-01T12:00:00Z",
	}
	if got[0] != want {
		t.Errorf("stale payload:\n got %+v\nwant %+v", got[0], want)
	}
	if got[1].Severity != AlertCritical || got[1].ServingStale || got[1].SeriesKey != "GH:inflation" {
		t.Errorf("critical payload: %+v", got[1])
	}
}

func TestWebhookPayload_PlainAlert(t *testing.T) {
	p := newWebhookPayload(Alert{Level: AlertInfo, Title: "started"}, time.Unix(0, 0))
	if p.Event != "alert" || p.SeriesKey != "" || p.Country != "" || p.Summary != "started" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL+"/", "TOKEN", "42")
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "GH:inflation refresh failed", Message: "x.y"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("unexpected body %v", body)
	}
	if !strings.Contains(body["text"], `x\.y`) {
		t.Errorf("message not escaped: %q", body["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b (c)!"); got != `a\_b \(c\)\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

func TestLogNotifier_Levels(t *testing.T) {
	cases := map[AlertLevel]string{
		AlertInfo:     "INFO",
		AlertWarning:  "WARN",
		AlertCritical: "ERROR",
		"":            "INFO",
	}
	for level, want := range cases {
		if got := level.slogLevel().String(); got != want {
			t.Errorf("%q: got %s, want %s", level, got, want)
		}
	}
	if err := NewLogNotifier().Send(context.Background(), Alert{Level: AlertWarning, Title: "t"}); err != nil {
		t.Errorf("log notifier should never fail: %v", err)
	}
}
