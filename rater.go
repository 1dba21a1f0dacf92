package alig

import "math"

// A Rater determines the learning rate given the epoch
// number.
type Rater interface {
	Rate(epoch float64) float64
}

// A ConstRater is a Rater which always returns the same
// constant learning rate.
type ConstRater float64

// Rate returns float64(c).
func (c ConstRater) Rate(epoch float64) float64 {
	return float64(c)
}

// StepDecayRater multiplies an initial rate by Factor
// once for every milestone that the epoch has reached.
type StepDecayRater struct {
	Initial    float64
	Factor     float64
	Milestones []float64
}

// Rate computes the decayed learning rate.
func (s *StepDecayRater) Rate(epoch float64) float64 {
	var passed float64
	for _, m := range s.Milestones {
		if epoch >= m {
			passed++
		}
	}
	return s.Initial * math.Pow(s.Factor, passed)
}
