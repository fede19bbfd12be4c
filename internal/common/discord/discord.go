package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Client posts operational notices to a Discord webhook. A client with an
// empty URL is a no-op, so callers never need to branch on configuration.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) SendMessage(msg WebhookMessage) error {
	if c.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequest("POST", c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// SendImportReport posts a per-entity row count summary after a completed
// bulk import.
func (c *Client) SendImportReport(dataset string, counts map[string]int64, duration time.Duration) error {
	embed := Embed{
		Title:       "GTFS import completed",
		Description: fmt.Sprintf("Dataset `%s` reloaded in %s", dataset, duration.Round(time.Second)),
		Color:       0x2ECC71, // Green
		Timestamp:   time.Now(),
	}

	entities := make([]string, 0, len(counts))
	for entity := range counts {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		embed.Fields = append(embed.Fields, Field{
			Name:   entity,
			Value:  fmt.Sprintf("%d rows", counts[entity]),
			Inline: true,
		})
	}

	return c.SendMessage(WebhookMessage{Embeds: []Embed{embed}})
}

// SendImportFailure posts an alert when a bulk import aborts.
func (c *Client) SendImportFailure(dataset string, importErr error) error {
	embed := Embed{
		Title:       "GTFS import failed",
		Description: fmt.Sprintf("Dataset `%s` was not reloaded", dataset),
		Color:       0xFF0000, // Red
		Timestamp:   time.Now(),
		Fields: []Field{
			{Name: "error", Value: importErr.Error()},
		},
	}
	return c.SendMessage(WebhookMessage{Embeds: []Embed{embed}})
}
