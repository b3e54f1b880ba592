package metadata

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Store with a rate limiter on backing-store round trips.
//
// Several import runs missing their caches at the same time can stampede the
// metadata database, in particular when each run crosses the preheat threshold
// and issues a full-table load. The limiter bounds the aggregate fetch rate;
// the cache layer above absorbs the added latency.
type Throttled struct {
	inner   Store
	limiter *rate.Limiter
}

// NewThrottled wraps store so that backing fetches are admitted at most at
// limit events per second with the given burst.
func NewThrottled(store Store, limit rate.Limit, burst int) *Throttled {
	return &Throttled{
		inner:   store,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchOne waits for limiter admission, then delegates to the wrapped store.
func (t *Throttled) FetchOne(ctx context.Context, kind Kind, scheme IDScheme, id string) (Object, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return t.inner.FetchOne(ctx, kind, scheme, id)
}

// FetchAll waits for limiter admission, then delegates to the wrapped store.
// A full-table load counts as one event: the cost lives in the single query,
// not in per-row round trips.
func (t *Throttled) FetchAll(ctx context.Context, kind Kind) ([]Object, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return t.inner.FetchAll(ctx, kind)
}
