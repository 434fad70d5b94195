package pipeline

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer serializes calls to one remote dependency so the service never
// observes two requests closer together than 1/maxRPS, regardless of how
// many goroutines are calling. One shared instance per remote service.
type Pacer struct {
	limiter *rate.Limiter
}

func NewPacer(maxRPS float64) *Pacer {
	if maxRPS <= 0 {
		maxRPS = 1
	}
	// Burst of one keeps strict min-interval spacing between acquisitions.
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(maxRPS), 1)}
}

// Wait blocks until the next call slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
