// Package rest implements the paginated history contract over HTTP:
// GET <resource>?page=<n>&limit=<k>[&receiverId=...|&query=...] with a
// response body of {<items>: [...], totalCount?, limit?}.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/history"
	"go.uber.org/zap"
)

// Client issues history requests against one API base URL.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a REST client. timeout bounds each request.
func NewClient(base string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Resource binds one paginated endpoint to an item decoder, producing a
// history.Fetcher. itemsKey names the response field holding the item
// array ("recentChats", "messages", "posts"). Items that fail to decode
// are skipped, matching the per-payload tolerance of the push channel.
func (c *Client) Resource(path, itemsKey string, decodeItem func(raw []byte) (entity.Entity, error)) history.Fetcher {
	return &resource{client: c, path: path, itemsKey: itemsKey, decodeItem: decodeItem}
}

type resource struct {
	client     *Client
	path       string
	itemsKey   string
	decodeItem func(raw []byte) (entity.Entity, error)
}

func (r *resource) FetchPage(ctx context.Context, page, limit int, f history.Filters) (*history.PageResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if f.ReceiverID != "" {
		q.Set("receiverId", f.ReceiverID)
	}
	if f.Query != "" {
		q.Set("query", f.Query)
	}

	reqURL := r.client.base + r.path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", r.path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.path, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", r.path, err)
	}

	total := history.TotalUnknown
	if raw, ok := fields["totalCount"]; ok {
		if err := json.Unmarshal(raw, &total); err != nil {
			total = history.TotalUnknown
		}
	}

	var rawItems []json.RawMessage
	if raw, ok := fields[r.itemsKey]; ok {
		if err := json.Unmarshal(raw, &rawItems); err != nil {
			return nil, fmt.Errorf("decode %s items: %w", r.path, err)
		}
	}

	items := make([]entity.Entity, 0, len(rawItems))
	for _, raw := range rawItems {
		e, err := r.decodeItem(raw)
		if err != nil {
			r.client.logger.Debug("skipping undecodable history item",
				zap.String("resource", r.path), zap.Error(err))
			continue
		}
		items = append(items, e)
	}

	return &history.PageResult{Items: items, TotalCount: total}, nil
}
