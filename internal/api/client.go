package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/journal"
)

// Client talks to a running unitd API.
type Client struct {
	BaseURL string
	Token   string
	// HTTP is used for request/response calls. Streams use a client
	// without a timeout sharing its transport.
	HTTP *http.Client
}

func (c *Client) httpClient(stream bool) *http.Client {
	base := c.HTTP
	if base == nil {
		base = &http.Client{Timeout: 5 * time.Second}
	}
	if !stream {
		return base
	}
	return &http.Client{Transport: base.Transport}
}

func (c *Client) get(ctx context.Context, path string, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.httpClient(stream).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return nil, fmt.Errorf("GET %s: %s", path, e.Error)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Health returns GET /healthz.
func (c *Client) Health(ctx context.Context) (HealthzResponse, error) {
	var h HealthzResponse
	err := c.getJSON(ctx, "/healthz", &h)
	return h, err
}

// Processes returns GET /processes.
func (c *Client) Processes(ctx context.Context) (ProcessesResponse, error) {
	var p ProcessesResponse
	err := c.getJSON(ctx, "/processes", &p)
	return p, err
}

// History returns GET /history.
func (c *Client) History(ctx context.Context, f journal.Filter) ([]journal.Record, error) {
	q := url.Values{}
	if f.SessionID != "" {
		q.Set("session", f.SessionID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []journal.Record
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// Stream reads the SSE feed into ch until the connection drops or ctx ends.
func (c *Client) Stream(ctx context.Context, ch chan<- events.Event) error {
	resp, err := c.get(ctx, "/events", true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return ReadSSE(ctx, resp.Body, ch)
}

// ReadSSE decodes server-sent events from r into ch. Comment lines are
// skipped.
func ReadSSE(ctx context.Context, r io.Reader, ch chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var current events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(current.Data) > 0 {
				current.At = time.Now()
				select {
				case ch <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			current = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			current.Data = json.RawMessage(line[6:])
		}
	}
	return scanner.Err()
}
