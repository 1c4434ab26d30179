package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

type querier interface {
	Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
}

// lookupHost asks for A records first and falls back to AAAA when the A
// answer holds no address.
func lookupHost(ctx context.Context, q querier, host string) (*Answer, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &Answer{IPs: []net.IP{ip}}, nil
	}
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		req := new(dns.Msg)
		req.SetQuestion(dns.Fqdn(host), qtype)
		req.RecursionDesired = true
		resp, err := q.Query(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("query host failed, host:%s, type:%s, err:%w", host, dns.TypeToString[qtype], err)
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("query host failed, host:%s, type:%s, rcode:%s", host, dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
			continue
		}
		if ans := extractAnswer(resp); len(ans.IPs) > 0 {
			return ans, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no address found for host:%s", host)
}

func extractAnswer(resp *dns.Msg) *Answer {
	ans := &Answer{}
	var minTTL uint32
	for _, rr := range resp.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if len(ans.IPs) == 0 || rr.Header().Ttl < minTTL {
			minTTL = rr.Header().Ttl
		}
		ans.IPs = append(ans.IPs, ip)
	}
	ans.TTL = time.Duration(minTTL) * time.Second
	return ans
}
