package resolver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/schema"
)

// BasicParam holds the options every resolver link accepts as query params.
type BasicParam struct {
	Timeout int64 `schema:"timeout"` // ms
}

type Params struct {
	URL          *url.URL
	CustomParams BasicParam
}

func (p *Params) timeout() time.Duration {
	return time.Duration(p.CustomParams.Timeout) * time.Millisecond
}

type Factory func(schema string, host string, params *Params) (IHostResolver, error)

var m = make(map[string]Factory)

// Answer is the result of a host lookup. TTL is the smallest record ttl in
// the response, zero for literal addresses.
type Answer struct {
	IPs []net.IP
	TTL time.Duration
}

// IHostResolver turns a hostname into addresses.
type IHostResolver interface {
	String() string
	Resolve(ctx context.Context, host string) (*Answer, error)
}

func MakeResolvers(links []string) ([]IHostResolver, error) {
	rs := make([]IHostResolver, 0, len(links))
	for _, item := range links {
		r, err := MakeResolver(item)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

func MakeResolver(link string) (IHostResolver, error) {
	uri, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	cr, ok := m[uri.Scheme]
	if !ok {
		return nil, fmt.Errorf("no resolver type found, type:%s", uri.Scheme)
	}
	urlinfo := &Params{
		URL: uri,
	}
	if err := decodeParams(&urlinfo.CustomParams, uri.Query()); err != nil {
		return nil, fmt.Errorf("decode resolver params failed, link:%s, err:%w", link, err)
	}
	return cr(uri.Scheme, uri.Host, urlinfo)
}

func decodeParams(out interface{}, in map[string][]string) error {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	if err := d.Decode(out, in); err != nil {
		return err
	}
	return nil
}

func Register(schema string, fac Factory) {
	m[schema] = fac
}
