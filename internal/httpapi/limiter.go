package httpapi

import (
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/config"
)

// floodLimiter bounds how many client WebSocket upgrades one source IP may
// hold concurrently and how quickly it may reconnect, generalizing the
// teacher's config.Auth.FloodProtection knobs (carried, but never wired to
// any enforcement, in the teacher's own LoginServer config) into an actual
// per-IP gate on GET /api/client/v1.
type floodLimiter struct {
	enabled     bool
	maxPerIP    int
	fastLimit   int
	fastWindow  time.Duration
	normalDelay time.Duration

	mu   sync.Mutex
	open map[string]int
	last map[string]time.Time
	fast map[string]int
}

func newFloodLimiter(cfg config.Auth) *floodLimiter {
	return &floodLimiter{
		enabled:     cfg.FloodProtection,
		maxPerIP:    cfg.MaxConnectionPerIP,
		fastLimit:   cfg.FastConnectionLimit,
		fastWindow:  time.Duration(cfg.FastConnectionTime) * time.Millisecond,
		normalDelay: time.Duration(cfg.NormalConnectionTime) * time.Millisecond,
		open:        map[string]int{},
		last:        map[string]time.Time{},
		fast:        map[string]int{},
	}
}

// allow reports whether ip may open another connection right now. Every
// call that returns true is expected to be matched by a later release once
// that connection closes.
func (l *floodLimiter) allow(ip string) bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPerIP > 0 && l.open[ip] >= l.maxPerIP {
		return false
	}

	now := time.Now()
	if last, ok := l.last[ip]; ok && now.Sub(last) < l.fastWindow {
		l.fast[ip]++
		if l.fast[ip] > l.fastLimit {
			return false
		}
	} else {
		l.fast[ip] = 0
	}
	l.last[ip] = now
	l.open[ip]++
	return true
}

// release returns one connection slot for ip, called when that socket
// closes.
func (l *floodLimiter) release(ip string) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[ip] > 0 {
		l.open[ip]--
	}
}
