package stream

import "sync"

// globalStreamCap bounds total concurrent SSE connections across all IPs so
// a distributed set of clients cannot exhaust file descriptors.
const globalStreamCap = 1000

// streamLimiter enforces per-IP and global concurrent-connection limits.
// A slot taken by acquire must be returned with release on disconnect.
type streamLimiter struct {
	maxPerIP int

	mu    sync.Mutex
	perIP map[string]int
	total int
}

func newStreamLimiter(maxPerIP int) *streamLimiter {
	return &streamLimiter{
		maxPerIP: maxPerIP,
		perIP:    make(map[string]int),
	}
}

// acquire claims a connection slot for ip, reporting whether either limit
// would be exceeded.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= globalStreamCap || l.perIP[ip] >= l.maxPerIP {
		return false
	}
	l.perIP[ip]++
	l.total++
	return true
}

// release returns a slot claimed by acquire.
func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if n := l.perIP[ip] - 1; n > 0 {
		l.perIP[ip] = n
	} else {
		delete(l.perIP, ip)
	}
}

// count reports the active connections for ip.
func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
