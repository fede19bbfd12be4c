package gtfs_realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/logger"
)

const sampleFeed = `{
	"header": {"gtfsRealtimeVersion": "2.0", "timestamp": "1756700000"},
	"entity": [
		{
			"id": "1",
			"tripUpdate": {
				"trip": {"tripId": "trip-1", "routeId": "route-1"},
				"stopTimeUpdate": [
					{"stopSequence": 5, "stopId": "stop-9", "arrival": {"delay": 120}}
				]
			}
		}
	]
}`

func newTestFetcher(url string) *Fetcher {
	cfg := config.FeedConfig{URL: url, APIKey: "secret", PollInterval: 30 * time.Second}
	return NewFetcher(cfg, logger.Discard())
}

func TestFetchDecodesFeed(t *testing.T) {
	var gotKey, gotCache string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotCache = r.Header.Get("Cache-Control")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	feed := newTestFetcher(srv.URL).Fetch(context.Background())
	if feed == nil {
		t.Fatal("expected a decoded feed, got nil")
	}
	if len(feed.Entity) != 1 {
		t.Fatalf("entities = %d, want 1", len(feed.Entity))
	}
	tu := feed.Entity[0].GetTripUpdate()
	if tu.GetTrip().GetTripId() != "trip-1" {
		t.Errorf("trip id = %q, want trip-1", tu.GetTrip().GetTripId())
	}
	if got := tu.GetStopTimeUpdate()[0].GetArrival().GetDelay(); got != 120 {
		t.Errorf("arrival delay = %d, want 120", got)
	}
	if gotKey != "secret" {
		t.Errorf("x-api-key header = %q, want secret", gotKey)
	}
	if gotCache != "no-cache" {
		t.Errorf("Cache-Control header = %q, want no-cache", gotCache)
	}
}

func TestFetchReturnsNilOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if feed := newTestFetcher(srv.URL).Fetch(context.Background()); feed != nil {
		t.Errorf("expected nil feed on 403, got %v", feed)
	}
}

func TestFetchReturnsNilOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entity": not json`))
	}))
	defer srv.Close()

	if feed := newTestFetcher(srv.URL).Fetch(context.Background()); feed != nil {
		t.Errorf("expected nil feed on decode failure, got %v", feed)
	}
}

func TestFetchReturnsNilWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if feed := newTestFetcher(srv.URL).Fetch(context.Background()); feed != nil {
		t.Errorf("expected nil feed on connection failure, got %v", feed)
	}
}
