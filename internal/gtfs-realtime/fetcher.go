package gtfs_realtime

import (
	"context"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/logger"
)

const (
	headerAPIKey = "x-api-key"
	userAgent    = "tripwatch-data/1.0"
)

// Fetcher pulls the realtime trip-update feed over HTTP. The upstream
// serves the GTFS-RT JSON encoding, decoded here with protojson.
type Fetcher struct {
	config     config.FeedConfig
	httpClient *http.Client
	logger     logger.Logger
}

func NewFetcher(cfg config.FeedConfig, log logger.Logger) *Fetcher {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	return &Fetcher{config: cfg, httpClient: client, logger: log}
}

// Fetch issues one GET against the feed URL. A non-200 status or a body
// that fails to decode yields nil with a logged warning; callers treat nil
// as "no data this cycle" and keep polling.
func (f *Fetcher) Fetch(ctx context.Context) *gtfs.FeedMessage {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		f.logger.Warn("Failed to build feed request", "url", f.config.URL, "error", err)
		return nil
	}
	req.Header.Set(headerAPIKey, f.config.APIKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("Feed fetch failed", "url", f.config.URL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("Feed returned non-OK status", "url", f.config.URL, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("Failed to read feed body", "error", err)
		return nil
	}

	feed := &gtfs.FeedMessage{}
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(body, feed); err != nil {
		f.logger.Warn("Failed to decode feed body", "error", err)
		return nil
	}

	f.logger.Debug("Fetched realtime feed", "entities", len(feed.Entity))
	return feed
}
