package resolver

import (
	"context"
	"fmt"
	"net"
)

// System returns a resolver backed by the operating system resolver.
func System() IHostResolver {
	return &systemResolver{r: net.DefaultResolver}
}

type systemResolver struct {
	r *net.Resolver
}

func (s *systemResolver) String() string {
	return "system"
}

func (s *systemResolver) Resolve(ctx context.Context, host string) (*Answer, error) {
	addrs, err := s.r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address found for host:%s", host)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return &Answer{IPs: ips}, nil
}
