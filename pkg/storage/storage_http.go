package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Client = &HTTPClient{}

// HTTPClient reads objects from a public bucket URL, e.g.
// https://storage.googleapis.com/<bucket>.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("http: base url required")
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("http: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("http: unsupported scheme %q", base.Scheme)
	}
	return &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, c.base.JoinPath(key).String())
	if err != nil {
		return nil, &TransportError{Backend: "http", Key: key, Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("http: %s: %w", key, ErrNotFound)
	}
	return nil, &TransportError{Backend: "http", Key: key, Err: &StatusError{Code: resp.StatusCode}}
}

func (c *HTTPClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}
