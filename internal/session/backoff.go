package session

import "time"

// backoffDuration implements the reconnect backoff schedule: 30s * 2^(n-1),
// where n is the number of consecutive failed connection attempts
// (1-indexed; values below 1 count as 1). The exponent stops at 6 and the
// result is capped at 600s (10m), so attempt 6 and later all wait 600s.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}
	d := 30 * time.Second << uint(shift)
	const cap = 600 * time.Second
	if d > cap {
		d = cap
	}
	return d
}
