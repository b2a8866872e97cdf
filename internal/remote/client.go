// Package remote is the HTTP client for the chat backend's REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("remote: not found")

// Image is a stored image as exchanged with the backend.
type Image struct {
	ID   string `json:"id"`
	Data string `json:"image_data"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://api.example.com/socketio/api.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the backend REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// New validates the base URL and creates a client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base %q: scheme must be http or https", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, http: hc, logger: logger}, nil
}

// GetRooms lists the room names known to the backend. The backend answers
// either an array of names or an object keyed by room name.
func (c *Client) GetRooms(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "rooms", nil, &raw); err != nil {
		return nil, fmt.Errorf("get rooms: %w", err)
	}
	rooms, err := decodeRooms(raw)
	if err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}

// GetImage fetches a stored image by id.
func (c *Client) GetImage(ctx context.Context, id string) (Image, error) {
	if id == "" {
		return Image{}, errors.New("get image: id is required")
	}
	var img Image
	if err := c.do(ctx, http.MethodGet, "images/"+url.PathEscape(id), nil, &img); err != nil {
		return Image{}, fmt.Errorf("get image %s: %w", id, err)
	}
	if img.ID == "" {
		img.ID = id
	}
	return img, nil
}

// SaveImage uploads image data (typically a data URL) under id.
func (c *Client) SaveImage(ctx context.Context, id, data string) error {
	if id == "" {
		return errors.New("save image: id is required")
	}
	if err := c.do(ctx, http.MethodPost, "images/", Image{ID: id, Data: data}, nil); err != nil {
		return fmt.Errorf("save image %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	endpoint := c.base.JoinPath(path)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", endpoint.Path),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error body: %w", err)
		}
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeRooms(raw json.RawMessage) ([]string, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		if names == nil {
			names = []string{}
		}
		return names, nil
	}
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, err
	}
	names = make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
