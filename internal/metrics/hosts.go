package metrics

import "sync"

// HostOverflow is the label shared by hosts seen after the limit was reached
const HostOverflow = "other"

// HostLimiter bounds the number of distinct host labels an output keeps
// state for. The first limit hosts keep their own label, every later host is
// folded into HostOverflow.
type HostLimiter struct {
	limit int
	mu    sync.Mutex
	seen  map[string]struct{}
}

// NewHostLimiter creates a limiter admitting at most limit hosts.
// A limit below one folds every host into HostOverflow.
func NewHostLimiter(limit int) *HostLimiter {
	if limit < 0 {
		limit = 0
	}
	return &HostLimiter{
		limit: limit,
		seen:  make(map[string]struct{}, limit),
	}
}

// Label returns host if it is tracked or can still be admitted,
// HostOverflow otherwise.
func (l *HostLimiter) Label(host string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[host]; ok {
		return host
	}
	if len(l.seen) >= l.limit {
		return HostOverflow
	}
	l.seen[host] = struct{}{}
	return host
}
