package faults

import (
	"math/rand"
	"strings"
	"time"
)

// maxTraceChars bounds stored stack traces so transition rows stay small.
const maxTraceChars = 2000

// RetryDelay returns the delay before retry attempt n (1-based): base doubled
// per attempt, jittered within [0.75, 1.25] of the nominal value, and capped.
// The jitter window keeps concurrent retries from synchronizing without
// making delays unpredictable for tests.
func RetryDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}

	nominal := base
	for i := 1; i < attempt; i++ {
		nominal *= 2
		if cap > 0 && nominal >= cap {
			nominal = cap
			break
		}
	}

	jitter := 0.75 + rand.Float64()*0.5
	delay := time.Duration(float64(nominal) * jitter)
	if cap > 0 && delay > cap {
		delay = cap
	}
	return delay
}

// Truncate bounds a stack trace or long message for persistence.
func Truncate(trace string) string {
	trace = strings.TrimSpace(trace)
	if len(trace) <= maxTraceChars {
		return trace
	}
	return trace[:maxTraceChars]
}
