package resolver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultClassicTimeout = 5 * time.Second

func init() {
	Register("tcp", basicResolverFactory)
	Register("udp", basicResolverFactory)
	Register("dot", basicResolverFactory)
}

func basicResolverFactory(schema string, host string, params *Params) (IHostResolver, error) {
	timeout := params.timeout()
	if timeout <= 0 {
		timeout = defaultClassicTimeout
	}
	switch schema {
	case "udp", "tcp":
		addr, err := ensurePort(host, "53")
		if err != nil {
			return nil, err
		}
		return &classicResolver{
			addr:   addr,
			client: &dns.Client{Net: schema, Timeout: timeout},
		}, nil
	case "dot":
		addr, err := ensurePort(host, "853")
		if err != nil {
			return nil, err
		}
		hostname, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		client := &dns.Client{
			Net:     "tcp-tls",
			Timeout: timeout,
			TLSConfig: &tls.Config{
				ServerName: hostname,
				MinVersion: tls.VersionTLS12,
			},
		}
		return &classicResolver{addr: addr, client: client}, nil
	}
	return nil, fmt.Errorf("unsupported dns type:%s", schema)
}

type classicResolver struct {
	addr   string
	client *dns.Client
}

func (r *classicResolver) String() string {
	return fmt.Sprintf("%s/%s", r.client.Net, r.addr)
}

func (r *classicResolver) Resolve(ctx context.Context, host string) (*Answer, error) {
	return lookupHost(ctx, r, host)
}

func (r *classicResolver) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("resolver", r.String()),
		zap.String("name", req.Question[0].Name),
	)
	logger.Debug("classic resolver start query")
	resp, _, err := r.client.ExchangeContext(ctx, req, r.addr)
	if err != nil {
		logger.Debug("classic resolver query failed", zap.Error(err))
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from %s", r.addr)
	}
	logger.Debug("classic resolver query success", zap.Int("answer_count", len(resp.Answer)))
	return resp, nil
}

func ensurePort(host string, defaultPort string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("empty resolver host")
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	cleanHost := host
	if strings.HasPrefix(cleanHost, "[") && strings.HasSuffix(cleanHost, "]") {
		cleanHost = strings.TrimPrefix(cleanHost, "[")
		cleanHost = strings.TrimSuffix(cleanHost, "]")
	}
	return net.JoinHostPort(cleanHost, defaultPort), nil
}
