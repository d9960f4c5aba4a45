package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient looks identifiers up against an HTTP(S) directory service.
// A document lives at <base>/<url-escaped identifier>.
type HTTPClient struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient builds a client for the directory rooted at base.
// timeout bounds each lookup; zero means rely on the caller's context.
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base:    base,
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, id string) (Document, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+url.PathEscape(id), nil)
	if err != nil {
		return Document{}, fmt.Errorf("directory: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Document{}, fmt.Errorf("%w: %s", ErrTimeout, id)
		}
		return Document{}, fmt.Errorf("directory: lookup %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return Document{}, fmt.Errorf("directory: lookup %s: unexpected status %d", id, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrUnverifiable, id)
	}
	return doc, nil
}
