package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var _ Source = (*HTTPSource)(nil)

// HTTPSource fetches artifacts over HTTP(S) with caching disabled, so a
// republished manifest is seen on the next check.
type HTTPSource struct {
	client *http.Client
	base   string
}

// NewHTTPSource returns a source rooted at base, the URL of the node's directory.
func NewHTTPSource(client *http.Client, base string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, base: base}
}

func (s *HTTPSource) Location(name string) string {
	u, err := url.JoinPath(s.base, name)
	if err != nil {
		return s.base + "/" + name
	}
	return u
}

func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	u := s.Location(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		drain(resp.Body)
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	default:
		drain(resp.Body)
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 4<<10))
	_ = rc.Close()
}
