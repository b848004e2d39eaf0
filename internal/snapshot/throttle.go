package snapshot

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstBytes caps the token-bucket burst so a single Write cannot blow
// through the configured rate in one shot.
const maxBurstBytes = 256 * 1024

// ThrottledWriter is an io.Writer whose throughput is bounded by a token
// bucket, used to pace archival-copy writes so they do not starve the
// live snapshot path for disk bandwidth.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w at bytesPerSec. A non-positive rate returns w
// unchanged.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	burst := int(bytesPerSec)
	if burst > maxBurstBytes {
		burst = maxBurstBytes
	}
	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write splits p into burst-sized chunks, waiting for tokens before each.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > tw.limiter.Burst() {
			chunk = chunk[:tw.limiter.Burst()]
		}
		if err := tw.limiter.WaitN(tw.ctx, len(chunk)); err != nil {
			return total, err
		}
		n, err := tw.w.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
		p = p[len(chunk):]
	}
	return total, nil
}
