// Package distribution provides the two duration samplers the spec
// admits: Exponential and Constant. Both consume exactly one draw from
// the shared rng.Stream per Sample call, so swapping one for the other
// never desynchronizes the draws observed by sibling distributions.
package distribution

import (
	"math"

	"github.com/terminal-bench/queuesim/internal/rng"
	"github.com/terminal-bench/queuesim/simerrors"
)

// Sampler produces a non-negative duration from the shared RNG.
type Sampler interface {
	Sample(stream *rng.Stream) (float64, error)
}

// Exponential samples Exp(rate): -ln(1-u)/rate.
type Exponential struct {
	Rate float64
}

// NewExponential validates rate > 0 and returns an Exponential sampler.
func NewExponential(rate float64) (Exponential, error) {
	if rate <= 0 {
		return Exponential{}, simerrors.NewConfigurationError("rate", "exponential rate must be > 0")
	}
	return Exponential{Rate: rate}, nil
}

// Sample draws one uniform value and returns a non-negative duration.
// A uniform draw of exactly 1.0 would send ln(1-u) to -Inf; the RNG
// cannot produce that value by construction (see rng.Stream.Float64),
// but Sample still resamples defensively so the contract holds even if
// the stream implementation ever changes.
func (e Exponential) Sample(stream *rng.Stream) (float64, error) {
	const maxResamples = 8
	for attempt := 0; attempt < maxResamples; attempt++ {
		u := stream.Float64()
		if u >= 1.0 {
			continue
		}
		return -math.Log(1-u) / e.Rate, nil
	}
	return 0, simerrors.NewNumericDomainError("Exponential.Sample", "RNG repeatedly returned 1.0")
}

// Constant always returns Value, but still consumes exactly one RNG
// draw — a hard contract (spec §4.2) that preserves positional
// synchronization when a stochastic distribution is swapped for a
// constant one during testing.
type Constant struct {
	Value float64
}

// NewConstant validates value >= 0 and returns a Constant sampler.
func NewConstant(value float64) (Constant, error) {
	if value < 0 {
		return Constant{}, simerrors.NewConfigurationError("value", "constant value must be >= 0")
	}
	return Constant{Value: value}, nil
}

// Sample consumes one RNG draw and returns Value unconditionally.
func (c Constant) Sample(stream *rng.Stream) (float64, error) {
	_ = stream.Float64()
	return c.Value, nil
}
