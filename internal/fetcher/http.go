package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/xxxsen/cdrfetch/internal/resolver"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const maxErrorBodySize = 256

func init() {
	Register("http", httpFetcherFactory)
	Register("https", httpFetcherFactory)
}

func httpFetcherFactory(scheme string, o *options) (IFetcher, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     10,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if o.resolver != nil {
		// a proxy would resolve the host itself
		transport.Proxy = nil
		transport.DialContext = resolver.DialContext(o.resolver, dialer)
	}
	return &httpFetcher{
		client:      &http.Client{Timeout: o.timeout, Transport: transport},
		userAgent:   o.userAgent,
		maxBodySize: o.maxBodySize,
	}, nil
}

type httpFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

func (f *httpFetcher) String() string {
	return "http"
}

func (f *httpFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("url", link))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed, url:%s, err:%w", link, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request failed, url:%s, err:%w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{URL: link, StatusCode: resp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed, url:%s, err:%w", link, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("body too large, url:%s, limit:%d", link, f.maxBodySize)
	}
	logger.Debug("fetch url succ", zap.Int("size", len(body)), zap.Duration("cost", time.Since(start)))
	return body, nil
}
