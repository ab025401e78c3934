package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if initialInterval > 0 {
		exp.InitialInterval = initialInterval
	}
	if maxInterval > 0 {
		exp.MaxInterval = maxInterval
	}
	if multiplier > 1 {
		exp.Multiplier = multiplier
	}
	exp.MaxElapsedTime = 0
	return exp
}
