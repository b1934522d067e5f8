package notifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/potooio/pvcwatch/internal/types"
)

type namespaceBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// delivered is the state of the last admitted transition.
	delivered types.AlertState
}

// namespaceLimiter hands out one token bucket per namespace.
type namespaceLimiter struct {
	mu      sync.Mutex
	buckets map[string]*namespaceBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// newNamespaceLimiter allows perMinute transitions per namespace with a
// burst of a tenth of that. Zero or negative means unlimited.
func newNamespaceLimiter(perMinute int) *namespaceLimiter {
	l := &namespaceLimiter{
		buckets: make(map[string]*namespaceBucket),
		limit:   rate.Inf,
		burst:   1,
		now:     time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = max(1, perMinute/10)
	}
	return l
}

func (l *namespaceLimiter) bucket(ns string) *namespaceBucket {
	b, ok := l.buckets[ns]
	if !ok {
		b = &namespaceBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ns] = b
	}
	b.lastSeen = l.now()
	return b
}

// Allow takes a token from the namespace bucket.
func (l *namespaceLimiter) Allow(ns string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket(ns).limiter.Allow()
}

// Admit decides whether a transition into to may be delivered for ns. A
// transition into a state other than the last one delivered is always
// admitted, spending a token if one is available. Repeats of the delivered
// state need a token.
func (l *namespaceLimiter) Admit(ns string, to types.AlertState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucket(ns)
	allowed := b.limiter.Allow()
	if to != b.delivered {
		allowed = true
	}
	if allowed {
		b.delivered = to
	}
	return allowed
}

// Forget drops buckets idle for longer than idle.
func (l *namespaceLimiter) Forget(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for ns, b := range l.buckets {
		if !b.lastSeen.After(cutoff) {
			delete(l.buckets, ns)
		}
	}
}
