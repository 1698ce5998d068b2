package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxRedirects = 5

var ErrUpstream = errors.New("upstream fetch failed")

// Stream is an open upstream response body. Total is -1 when the length is
// unknown.
type Stream struct {
	Body        io.ReadCloser
	Total       int64
	ContentType string
}

type Fetcher interface {
	Open(ctx context.Context, rawURL string) (*Stream, error)
}

// HTTPFetcher issues plain GETs. The client carries no timeout: the
// request context bounds the transfer.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (f *HTTPFetcher) Open(ctx context.Context, rawURL string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", "fetchrelay")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	return &Stream{
		Body:        resp.Body,
		Total:       resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// progressReader counts bytes as they pass and reports the running total.
type progressReader struct {
	r        io.Reader
	received int64
	report   func(received int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		p.report(p.received)
	}
	return n, err
}
