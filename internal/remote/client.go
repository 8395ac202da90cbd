package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/quickserve/possync/internal/entity"
)

// ClientConfig holds connection settings for the cloud store.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://sync.example.com
	BaseURL string

	// TenantID scopes every request to one restaurant's data.
	TenantID string

	// Token is the bearer token for this device's session.
	Token string

	// HTTPTimeout bounds point operations (default: 30s).
	HTTPTimeout time.Duration
}

// Client talks to the cloud store over HTTPS for point operations and a
// WebSocket stream per entity type for change subscriptions.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a remote store client for one tenant session.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// collectionURL builds /v1/tenants/{tenant}/{collection}[/{id}].
func (c *Client) collectionURL(t entity.Type, id string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u := fmt.Sprintf("%s/v1/tenants/%s/%s",
		base, url.PathEscape(c.cfg.TenantID), url.PathEscape(string(t)))
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &StatusError{Code: http.StatusNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Get implements Store.Get. Absent documents return (nil, nil).
func (c *Client) Get(ctx context.Context, t entity.Type, id string) (*entity.Record, error) {
	var rec entity.Record
	err := c.do(ctx, http.MethodGet, c.collectionURL(t, id), nil, &rec)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Snapshot implements Store.Snapshot.
func (c *Client) Snapshot(ctx context.Context, t entity.Type) ([]*entity.Record, error) {
	var recs []*entity.Record
	if err := c.do(ctx, http.MethodGet, c.collectionURL(t, ""), nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Upsert implements Store.Upsert.
func (c *Client) Upsert(ctx context.Context, t entity.Type, rec *entity.Record) error {
	return c.do(ctx, http.MethodPut, c.collectionURL(t, rec.ID), rec, nil)
}

// DeleteBatch implements Store.DeleteBatch.
// The ids are submitted as one batch commit; the caller is responsible for
// chunking below the backend's per-commit ceiling.
func (c *Client) DeleteBatch(ctx context.Context, t entity.Type, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	err := c.do(ctx, http.MethodPost, c.collectionURL(t, "")+":batchDelete", body, nil)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusRequestEntityTooLarge {
		return fmt.Errorf("%w: %d ids", ErrBatchTooLarge, len(ids))
	}
	return err
}

// Listen implements Store.Listen by dialing the tenant's change stream.
//
// The server pushes JSON arrays of ChangeEvent. The returned subscription's
// channel is closed when the socket drops; the engine restarts with backoff.
func (c *Client) Listen(ctx context.Context, t entity.Type) (Subscription, error) {
	wsURL := strings.TrimRight(c.cfg.BaseURL, "/")
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = fmt.Sprintf("%s/v1/tenants/%s/listen?type=%s",
		wsURL, url.PathEscape(c.cfg.TenantID), url.QueryEscape(string(t)))

	opts := &websocket.DialOptions{}
	if c.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.cfg.Token}}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream for %s: %w", t, err)
	}

	sub := &wsSubscription{
		conn:   conn,
		events: make(chan []ChangeEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.readLoop(ctx)
	return sub, nil
}

// wsSubscription adapts a websocket connection to the Subscription interface.
type wsSubscription struct {
	conn      *websocket.Conn
	events    chan []ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSubscription) Events() <-chan []ChangeEvent {
	return s.events
}

func (s *wsSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// readLoop decodes event batches until the socket drops or the subscription
// is closed, then closes the events channel so the consumer can restart.
func (s *wsSubscription) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.Close()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var batch []ChangeEvent
		if err := json.Unmarshal(data, &batch); err != nil {
			// A malformed frame is a server bug; drop it and keep reading.
			continue
		}
		if len(batch) == 0 {
			continue
		}

		select {
		case s.events <- batch:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
