package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Rule defines a rate limit for a specific method+path combination.
// Limit requests are allowed per Window, with bursts up to Limit.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
}

// Result contains rate limit status for a request.
type Result struct {
	Limit     int
	Remaining int
	RetryIn   time.Duration
}

type entry struct {
	ruleKey  string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies token-bucket rate limiting per IP+method+path.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule // key: "METHOD:PATH"
	entries map[string]*entry
	clock   Clock
}

// NewLimiter creates a Limiter with the given rules.
func NewLimiter(rules []Rule) *Limiter {
	ruleMap := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ruleMap[r.Method+":"+r.Path] = r
	}
	return &Limiter{
		rules:   ruleMap,
		entries: make(map[string]*entry),
		clock:   realClock{},
	}
}

// Allow checks whether a request from ip to method+path is allowed.
// If no rule matches the method+path, it returns (Result{}, true).
func (l *Limiter) Allow(ip, method, path string) (Result, bool) {
	ruleKey := method + ":" + path
	rule, ok := l.rules[ruleKey]
	if !ok {
		return Result{}, true
	}

	now := l.clock.Now()
	key := ip + ":" + ruleKey

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		e = &entry{
			ruleKey: ruleKey,
			limiter: rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit),
		}
		l.entries[key] = e
	}
	e.lastSeen = now

	res := e.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Result{Limit: rule.Limit, Remaining: 0, RetryIn: delay}, false
	}
	return Result{Limit: rule.Limit, Remaining: int(e.limiter.TokensAt(now))}, true
}

// Cleanup removes entries idle for longer than their rule's window.
// Call periodically to prevent unbounded growth.
func (l *Limiter) Cleanup() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		rule, ok := l.rules[e.ruleKey]
		if !ok || now.Sub(e.lastSeen) >= rule.Window {
			delete(l.entries, key)
		}
	}
}
