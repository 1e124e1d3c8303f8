package weather

import (
	"context"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/models"
)

// Breaker fails fast while the upstream is known to be down.
type Breaker struct {
	next Source
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreaker(next Source, cb *circuitbreaker.CircuitBreaker) *Breaker {
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Fetch(ctx context.Context, d models.Descriptor) (Result, error) {
	var res Result
	err := b.cb.Call(ctx, func(ctx context.Context) error {
		var err error
		res, err = b.next.Fetch(ctx, d)
		return err
	})
	return res, err
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() circuitbreaker.State {
	return b.cb.State()
}
