package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

func init() {
	Register("file", fileFetcherFactory)
}

func fileFetcherFactory(scheme string, o *options) (IFetcher, error) {
	return &fileFetcher{maxBodySize: o.maxBodySize}, nil
}

// fileFetcher serves file:// links from a local mirror of the catalog tree.
type fileFetcher struct {
	maxBodySize int64
}

func (f *fileFetcher) String() string {
	return "file"
}

func (f *fileFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uri, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse file link failed, link:%s, err:%w", link, err)
	}
	p := uri.Path
	if uri.Host != "" && uri.Host != "localhost" {
		p = "//" + uri.Host + p
	}
	file, err := os.Open(filepath.FromSlash(p))
	if err != nil {
		return nil, fmt.Errorf("open file failed, path:%s, err:%w", p, err)
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read file failed, path:%s, err:%w", p, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("file too large, path:%s, limit:%d", p, f.maxBodySize)
	}
	return body, nil
}
