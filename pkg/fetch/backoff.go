package fetch

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// backoffPolicy bounds the retry delay growth for plain-HTTP fetches.
type backoffPolicy struct {
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
}

var defaultBackoff = backoffPolicy{BaseMs: 500, MaxMs: 30_000, MaxJitterMs: 400}

// computeBackoff returns the delay before a retry: base * 2^attempt capped
// at MaxMs, plus deterministic jitter derived from the URL and attempt so
// that re-runs reproduce the same schedule.
func computeBackoff(url string, attempt int, policy backoffPolicy) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	delay := policy.BaseMs * factor
	if delay > policy.MaxMs {
		delay = policy.MaxMs
	}
	return time.Duration(delay+deterministicJitter(url, attempt, policy.MaxJitterMs)) * time.Millisecond
}

func deterministicJitter(url string, attempt int, maxJitterMs int64) int64 {
	if maxJitterMs <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%d", url, attempt)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(maxJitterMs))
}
