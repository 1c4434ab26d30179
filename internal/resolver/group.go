package resolver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type groupResolver struct {
	res        []IHostResolver
	concurrent int
}

func (p *groupResolver) String() string {
	names := make([]string, 0, len(p.res))
	for _, r := range p.res {
		names = append(names, r.String())
	}
	return fmt.Sprintf("group(%s)", strings.Join(names, ","))
}

// Resolve races up to concurrent members starting at a random offset and
// returns the first answer. A failing member does not cancel the others.
func (p *groupResolver) Resolve(ctx context.Context, host string) (*Answer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg := new(errgroup.Group)
	eg.SetLimit(p.concurrent)
	var result atomic.Pointer[Answer]
	pos := rand.Int()
	for i := 0; i < p.concurrent; i++ {
		res := p.res[(i+pos)%len(p.res)]
		eg.Go(func() error {
			ans, err := res.Resolve(ctx, host)
			if err != nil {
				return err
			}
			result.CompareAndSwap(nil, ans)
			cancel()
			return nil
		})
	}
	err := eg.Wait()
	if v := result.Load(); v != nil {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no err return and no address found, host:%s", host)
}

// NewGroupResolver returns res itself when it holds a single resolver.
func NewGroupResolver(res []IHostResolver, concurrent int) IHostResolver {
	if len(res) == 1 {
		return res[0]
	}
	if concurrent <= 0 {
		concurrent = 1
	}
	if concurrent > len(res) {
		concurrent = len(res)
	}
	return &groupResolver{res: res, concurrent: concurrent}
}
