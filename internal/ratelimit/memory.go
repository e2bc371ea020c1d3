package ratelimit

import (
	"sync"
	"time"
)

type bucketKey struct {
	clientIP string
	class    EndpointClass
}

type bucket struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is the default Rate Limiter: a fixed 60-second counter
// per (client_ip, endpoint_class), created lazily on first request and
// swept once its window is well past stale.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	stopCh  chan struct{}
}

func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		buckets: make(map[bucketKey]*bucket),
		stopCh:  make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *MemoryLimiter) Allow(clientIP string, class EndpointClass, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: 0, Remaining: 0, ResetUnix: 0}
	}

	key := bucketKey{clientIP: clientIP, class: class}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > Window {
		b = &bucket{count: 0, windowStart: now}
		l.buckets[key] = b
	}

	reset := b.windowStart.Add(Window).Unix()

	if b.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetUnix: reset}
	}

	b.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - b.count, ResetUnix: reset}
}

func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops buckets whose window started more than 5 minutes ago, so
// idle clients don't accumulate forever.
func (l *MemoryLimiter) sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > 5*time.Minute {
			delete(l.buckets, key)
		}
	}
}

func (l *MemoryLimiter) Close() error {
	close(l.stopCh)
	return nil
}
