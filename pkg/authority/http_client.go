package authority

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/monitor"
)

const maxResponseBytes = 64 << 20

// Client 配置中心的 HTTP 客户端
// GET  <base>/configs       -> 配置快照
// POST <base>/fetch_values  -> 按顺序返回取值后的 WorkItem
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "http:" + c.base }

// Snapshot 实现 scheduler.Source
func (c *Client) Snapshot(ctx context.Context) (monitor.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/configs", nil)
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var snap monitor.Snapshot
	if err := c.do(req, &snap); err != nil {
		return monitor.Snapshot{}, err
	}
	if err := validate(snap); err != nil {
		return monitor.Snapshot{}, err
	}
	return snap, nil
}

// FetchValues 实现 registers.Fetcher；任何失败都作为整批传输错误返回
func (c *Client) FetchValues(ctx context.Context, items []monitor.WorkItem) ([]monitor.WorkItem, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/fetch_values", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out []monitor.WorkItem
	if err := c.do(req, &out); err != nil {
		return nil, perrors.WrapError(perrors.ErrCodeTransport, "fetch_values", err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(data, 200))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
