package executor

import "sync"

// Cancellation is a cooperative stop token for one run. Requesting a stop
// never interrupts an in-flight step; the executor polls the token only at
// level boundaries, so every running step finishes before the run winds down.
type Cancellation struct {
	mu        sync.Mutex
	requested bool
	reason    string
}

// RequestStop marks the run for cancellation. The first caller wins; later
// calls are no-ops and report false.
func (c *Cancellation) RequestStop(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requested {
		return false
	}
	c.requested = true
	c.reason = reason
	return true
}

// Requested reports whether a stop has been asked for.
func (c *Cancellation) Requested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Reason returns the reason given by the first RequestStop call.
func (c *Cancellation) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
