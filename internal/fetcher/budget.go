package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Azure DevOps rate-limit response headers.
const (
	headerRetryAfter = "Retry-After"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerDelay      = "X-RateLimit-Delay"
)

// RequestBudget paces requests against the organization's throttling
// window. It starts optimistic and learns the real budget from response
// headers.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	now       func() time.Time
	changed   chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: 1000,
		reset:     time.Now().Add(5 * time.Minute),
		now:       time.Now,
		changed:   make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Wait blocks until one request may be sent. It is shaped to serve as an
// azdo request gate.
func (b *RequestBudget) Wait(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Wait: nil context")
	}
	if b == nil || b.now == nil || b.changed == nil {
		return fmt.Errorf("Wait: RequestBudget not initialized (use NewRequestBudget)")
	}

	for {
		b.mu.Lock()
		now := b.now()

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// The window should have rolled over; let exactly one request
			// through to learn the new budget.
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
		default:
			until = b.reset
		}
		ch := b.changed
		b.mu.Unlock()

		if err := sleepUntil(ctx, now, until, ch); err != nil {
			return err
		}
	}
}

// sleepUntil waits for the deadline, a budget change, or ctx. A zero
// deadline waits for a change only.
func sleepUntil(ctx context.Context, now, until time.Time, changed <-chan struct{}) error {
	var timeout <-chan time.Time
	if !until.IsZero() {
		timer := time.NewTimer(max(until.Sub(now), 0))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
	case <-timeout:
	}
	return nil
}

// Observe updates the budget from a response's rate-limit headers. It is
// shaped to serve as an azdo response observer.
func (b *RequestBudget) Observe(resp *http.Response) {
	if b == nil || b.now == nil || resp == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	now := b.now()

	for _, h := range []string{headerRetryAfter, headerDelay} {
		secs, ok := positiveSeconds(resp.Header.Get(h))
		if !ok {
			continue
		}
		until := now.Add(time.Duration(secs * float64(time.Second)))
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}

	if raw := strings.TrimSpace(resp.Header.Get(headerRemaining)); raw != "" {
		if val, err := strconv.ParseFloat(raw, 64); err == nil && val >= 0 {
			if n := int(val); n != b.remaining {
				b.remaining = n
				changed = true
			}
		}
	}

	if raw := strings.TrimSpace(resp.Header.Get(headerReset)); raw != "" {
		if val, err := strconv.ParseInt(raw, 10, 64); err == nil && val > 0 {
			if reset := time.Unix(val, 0); !b.reset.Equal(reset) {
				b.reset = reset
				changed = true
			}
		}
	}

	if changed {
		b.probed = false
		close(b.changed)
		b.changed = make(chan struct{})
	}
}

func positiveSeconds(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
