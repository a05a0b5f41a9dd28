package utils

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/bcrypt"
)

// DeviceFingerprint derives a stable device key from the client address and user agent
func DeviceFingerprint(ip, userAgent string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(ip) + "|" + strings.TrimSpace(userAgent)))
	return hex.EncodeToString(sum[:16])
}

// HashInternalKey returns the bcrypt hash to configure as Internal.KeyHash
func HashInternalKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Backoff bounds a retry loop
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// Retry calls fn until it succeeds, retryable reports false, attempts run out or ctx
// is done. The delay doubles after every failed attempt up to Max.
func Retry(ctx context.Context, b Backoff, retryable func(error) bool, fn func() error) error {
	delay := b.Initial
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt >= b.MaxAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
