package env

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcher adapts a base upstream origin to the Fetcher capability by
// issuing the incoming request against it with an *http.Client, on a
// configured per-fetcher timeout.
type HTTPFetcher struct {
	Base   *url.URL
	Client *http.Client
}

// NewHTTPFetcher builds a fetcher that forwards requests to base,
// preserving the incoming request's path and query.
func NewHTTPFetcher(base *url.URL, timeout time.Duration) *HTTPFetcher {
	client := &http.Client{Timeout: timeout}
	return &HTTPFetcher{Base: base, Client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := *req.URL
	target.Scheme = f.Base.Scheme
	target.Host = f.Base.Host

	outReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	outReq.Header = req.Header.Clone()
	outReq.ContentLength = req.ContentLength

	return f.Client.Do(outReq)
}
