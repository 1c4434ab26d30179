package resolver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	dohMethodGet  = "get"
	dohMethodPost = "post"

	dnsMessageType = "application/dns-message"
)

type dohParam struct {
	Method string `schema:"method"`
}

func init() {
	Register("https", dohResolverFactory)
}

// dohResolverFactory builds a DoH backend from links such as
// https://dns.google/dns-query?method=post. GET is used unless method says
// otherwise.
func dohResolverFactory(schema string, host string, params *Params) (IHostResolver, error) {
	p := &dohParam{}
	if err := decodeParams(p, params.URL.Query()); err != nil {
		return nil, fmt.Errorf("decode doh params failed, err:%w", err)
	}
	endpoint := fmt.Sprintf("%s://%s%s", schema, host, params.URL.EscapedPath())
	r, err := newDoHResolver(endpoint, params.timeout(), p.Method)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newDoHResolver(endpoint string, timeout time.Duration, method string) (*dohResolver, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse doh endpoint failed, endpoint:%s, err:%w", endpoint, err)
	}
	method = strings.ToLower(strings.TrimSpace(method))
	switch method {
	case "":
		method = dohMethodGet
	case dohMethodGet, dohMethodPost:
	default:
		return nil, fmt.Errorf("unsupported doh method:%s", method)
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     4,
		MaxIdleConns:        4,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableCompression:  true,
	}
	if u.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{ServerName: u.Hostname()}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dohResolver{
		endpoint: u,
		method:   method,
		client:   &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// DoHStatusError is returned when a DoH server answers with a non-200 status.
type DoHStatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *DoHStatusError) Error() string {
	return fmt.Sprintf("doh server returned bad status, endpoint:%s, code:%d, body:%s", e.Endpoint, e.Code, e.Body)
}

type dohResolver struct {
	endpoint *url.URL
	method   string
	client   *http.Client
}

func (r *dohResolver) String() string {
	return "doh:" + r.endpoint.String()
}

func (r *dohResolver) Resolve(ctx context.Context, host string) (*Answer, error) {
	ans, err := lookupHost(ctx, r, host)
	if err != nil {
		return nil, fmt.Errorf("doh lookup failed, endpoint:%s, err:%w", r.endpoint, err)
	}
	return ans, nil
}

// Query sends req with id 0 as the message id is redundant over http. The
// record ttls of the reply are capped by the response's max-age.
func (r *dohResolver) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	msg := req.Copy()
	msg.Id = 0
	payload, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack dns request failed, err:%w", err)
	}
	httpReq, err := r.buildRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	rsp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send doh request failed, err:%w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(rsp.Body, 256))
		return nil, &DoHStatusError{Endpoint: r.endpoint.String(), Code: rsp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(io.LimitReader(rsp.Body, dns.MaxMsgSize))
	if err != nil {
		return nil, fmt.Errorf("read doh response failed, err:%w", err)
	}
	reply := &dns.Msg{}
	if err := reply.Unpack(body); err != nil {
		return nil, fmt.Errorf("decode doh response failed, err:%w", err)
	}
	reply.Id = req.Id
	if maxAge, ok := parseMaxAge(rsp.Header.Get("Cache-Control")); ok {
		capTTL(reply, maxAge)
	}
	return reply, nil
}

func (r *dohResolver) buildRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if r.method == dohMethodPost {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint.String(), bytes.NewReader(payload))
		if err == nil {
			httpReq.Header.Set("Content-Type", dnsMessageType)
		}
	} else {
		u := *r.endpoint
		q := u.Query()
		q.Set("dns", base64.RawURLEncoding.EncodeToString(payload))
		u.RawQuery = q.Encode()
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create doh request failed, err:%w", err)
	}
	httpReq.Header.Set("Accept", dnsMessageType)
	return httpReq, nil
}

func parseMaxAge(cc string) (uint32, bool) {
	for _, directive := range strings.Split(cc, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(k, "max-age") {
			continue
		}
		n, err := strconv.ParseUint(strings.Trim(v, `"`), 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(n), true
	}
	return 0, false
}

func capTTL(msg *dns.Msg, maxTTL uint32) {
	for _, rr := range msg.Answer {
		if h := rr.Header(); h.Ttl > maxTTL {
			h.Ttl = maxTTL
		}
	}
}
