package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter builds the shared limiter behind --bwlimit. Burst is
// capped at 1 MiB so ordinary read-size chunks clear in a single wait,
// and floored at the 32 KiB copy chunk size: the limiter rejects any
// single charge above its burst, so a smaller burst would fail every
// read issued by io.Copy.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	const (
		maxBurst = 1 << 20
		minBurst = 32 * 1024
	)
	burst := bytesPerSec
	if burst > maxBurst {
		burst = maxBurst
	}
	if burst < minBurst {
		burst = minBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(burst))
}

// rateLimitedReader throttles reads through a shared limiter so every
// concurrent copy draws from the same bandwidth budget.
type rateLimitedReader struct {
	ctx     context.Context
	src     io.Reader
	limiter *rate.Limiter
}

func newRateLimitedReader(ctx context.Context, src io.Reader, l *rate.Limiter) *rateLimitedReader {
	return &rateLimitedReader{ctx: ctx, src: src, limiter: l}
}

// Read bills the limiter after the underlying read, so short reads are
// charged at their actual size.
func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.src.Read(p)
	if n > 0 {
		if werr := rl.limiter.WaitN(rl.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
