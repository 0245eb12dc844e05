// Package client talks to a running sesm server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Item mirrors the server's wire representation of a memory item.
type Item struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Type            string    `json:"type"`
	TTLSeconds      *int      `json:"ttl_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	LastMentionedAt time.Time `json:"last_mentioned_at"`
	Mentions        int       `json:"mentions"`
	Trust           float64   `json:"trust"`
}

// Transition mirrors one entry of /memory/{id}/history.
type Transition struct {
	Event      string    `json:"event"`
	Type       string    `json:"type"`
	Mentions   int       `json:"mentions"`
	Trust      float64   `json:"trust"`
	TTLSeconds *int      `json:"ttl_seconds"`
	At         time.Time `json:"at"`
}

// Client talks to the sesm server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for the server at serverURL.
func New(serverURL string, timeout time.Duration) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Write records a mention. A ttl of zero lets the server apply its default.
func (c *Client) Write(ctx context.Context, content string, ttl time.Duration) (*Item, error) {
	req := map[string]any{"content": content}
	if ttl > 0 {
		req["ttl_seconds"] = int(ttl / time.Second)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode write: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/memory/write", body)
	if err != nil {
		return nil, err
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &it, nil
}

// List fetches one of the listings: "episodic", "knowledge" or "all".
func (c *Client) List(ctx context.Context, which string) ([]Item, error) {
	switch which {
	case "episodic", "knowledge", "all":
	default:
		return nil, fmt.Errorf("unknown listing %q", which)
	}
	data, err := c.do(ctx, http.MethodGet, "/memory/"+which, nil)
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// History fetches the recorded transitions of an item.
func (c *Client) History(ctx context.Context, id string) ([]Transition, error) {
	data, err := c.do(ctx, http.MethodGet, "/memory/"+id+"/history", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return resp.Transitions, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
