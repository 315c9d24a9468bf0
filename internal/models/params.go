package models

import (
	"fmt"
	"math"
)

// DefaultWeights are the published FSRS-5 default weights.
var DefaultWeights = Weights{
	// initial stability per rating
	0.40255, 1.18385, 3.173, 15.69105,
	// difficulty
	7.1949, 0.5345, 1.4604, 0.0046,
	// recall stability
	1.54575, 0.1192, 1.01925,
	// forget stability
	1.9395, 0.11, 0.29605, 2.2698,
	// hard penalty, easy bonus
	0.2315, 2.9898,
	// short-term stability
	0.51655, 0.6621,
}

const (
	MaxMaximumInterval  = 100000
	MinRequestRetention = 0.1
)

func DefaultParams() FSRSParams {
	return FSRSParams{
		RequestRetention: 0.9,
		MaximumInterval:  36500,
		W:                DefaultWeights,
		EnableFuzz:       true,
		EnableShortTerm:  false,
		CardLimit:        50,
		Lapses:           8,
	}
}

func (p FSRSParams) Validate() error {
	if !(p.RequestRetention > MinRequestRetention && p.RequestRetention <= 1) {
		return fmt.Errorf("%w: request_retention %v out of range (0.1, 1.0]", ErrInvalidInput, p.RequestRetention)
	}

	if p.MaximumInterval < 1 || p.MaximumInterval > MaxMaximumInterval {
		return fmt.Errorf("%w: maximum_interval %d out of range [1, %d]", ErrInvalidInput, p.MaximumInterval, MaxMaximumInterval)
	}

	for i, v := range p.W {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight w[%d] is not finite", ErrInvalidInput, i)
		}
	}

	for i := 0; i < 4; i++ {
		if p.W[i] <= 0 {
			return fmt.Errorf("%w: initial stability weight w[%d] must be positive", ErrInvalidInput, i)
		}
	}

	if p.CardLimit < 0 {
		return fmt.Errorf("%w: card_limit %d must not be negative", ErrInvalidInput, p.CardLimit)
	}

	if p.Lapses < 1 {
		return fmt.Errorf("%w: lapses %d must be at least 1", ErrInvalidInput, p.Lapses)
	}

	return nil
}
