// Package ratelimit implements a fixed-window submission limiter keyed by
// client identity.
//
// The window is not sliding-window-precise: a counter created at T expires
// at T+window regardless of sub-window distribution. The skew at window
// boundaries is a documented limitation, not a defect.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultLimit is the submission ceiling for anonymous identities.
const DefaultLimit = 3

// DefaultWindow is the counting window.
const DefaultWindow = time.Hour

// Limiter counts submissions per identity within a fixed window.
type Limiter interface {
	// CheckAndIncrement consumes one unit of the identity's budget and
	// reports whether the submission is allowed.
	CheckAndIncrement(ctx context.Context, identity string) (bool, error)
}

// Identity derives a privacy-light client fingerprint from the remote IP and
// user-agent. No persistent cookie is involved; the hash only reduces
// trivial spoofing and keeps raw addresses out of the counter keys.
func Identity(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:16])
}
