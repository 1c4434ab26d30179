package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// DialContextFunc matches http.Transport.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext returns a dial func that resolves the host of addr with r and
// tries every returned address in order.
func DialContext(r IHostResolver, d *net.Dialer) DialContextFunc {
	if d == nil {
		d = &net.Dialer{}
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ans, err := r.Resolve(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve dial host failed, host:%s, resolver:%s, err:%w", host, r.String(), err)
		}
		var errs []error
		for _, ip := range ans.IPs {
			conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			logutil.GetLogger(ctx).Debug("dial resolved address failed", zap.String("host", host),
				zap.String("ip", ip.String()), zap.Error(err))
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, fmt.Errorf("no address to dial, host:%s", host)
		}
		return nil, errors.Join(errs...)
	}
}
