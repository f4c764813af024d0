// package ratelimit throttles outbound HTTP requests per host.
//
// Every metadata and lyrics provider shares one Limiter so lookups against
// the same API respect its minimum inter-request interval. Requests to the
// same host dispatch in FIFO order; responses may complete out of order.
package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"golang.org/x/time/rate"
)

type result struct {
	resp *http.Response
	err  error
}

type pending struct {
	req  *http.Request
	done chan result
}

type hostQueue struct {
	limiter *rate.Limiter
	queue   chan *pending
}

// Limiter is a per-host request throttle. A host without a configured
// limit is a programming error, not a runtime condition to recover from.
type Limiter struct {
	limits map[string]time.Duration
	base   http.RoundTripper

	mu    sync.Mutex
	hosts map[string]*hostQueue
}

// New creates a Limiter enforcing the given minimum interval between
// requests per host. A nil base falls back to [http.DefaultTransport].
func New(limits map[string]time.Duration, base http.RoundTripper) *Limiter {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Limiter{
		limits: limits,
		base:   base,
		hosts:  make(map[string]*hostQueue),
	}
}

// Client returns an [http.Client] that routes through the limiter.
func (l *Limiter) Client() *http.Client {
	return &http.Client{Transport: l}
}

// RoundTrip implements [http.RoundTripper]. The request is enqueued behind
// earlier requests to the same host and dispatched once the host's minimum
// interval has elapsed.
func (l *Limiter) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()

	queue, err := l.host(host)
	if err != nil {
		return nil, err
	}

	p := &pending{req: req, done: make(chan result, 1)}
	queue.queue <- p

	select {
	case res := <-p.done:
		return res.resp, res.err
	case <-req.Context().Done():
		// The worker still owns the request; it notices the dead
		// context before dispatching.
		return nil, req.Context().Err()
	}
}

// host returns the queue for a host, spawning its drain worker on first use.
func (l *Limiter) host(host string) (*hostQueue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if queue, ok := l.hosts[host]; ok {
		return queue, nil
	}

	interval, ok := l.limits[host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoRateLimit, host)
	}

	queue := &hostQueue{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		queue:   make(chan *pending, 64),
	}
	l.hosts[host] = queue

	go l.drain(queue)
	return queue, nil
}

// drain dispatches queued requests in order, spacing them by the host's
// interval. The transport itself runs concurrently so a slow response does
// not delay the next dispatch.
func (l *Limiter) drain(queue *hostQueue) {
	for p := range queue.queue {
		if err := p.req.Context().Err(); err != nil {
			p.done <- result{err: err}
			continue
		}

		if err := queue.limiter.Wait(p.req.Context()); err != nil {
			p.done <- result{err: err}
			continue
		}

		go func(p *pending) {
			resp, err := l.base.RoundTrip(p.req)
			p.done <- result{resp: resp, err: err}
		}(p)
	}
}
