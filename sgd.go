package alig

import "github.com/unixpickle/anydiff"

// SGD performs stochastic gradient descent with a
// learning rate schedule.
//
// Each step computes
//
//     p := p - rate * T(grad + weightDecay * p)
//
// where T is the Transformer (or the identity).
type SGD struct {
	Params []*anydiff.Var

	// Rater determines the learning rate for each epoch.
	Rater Rater

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer Transformer

	WeightDecay float64

	grad  anydiff.Grad
	epoch int
	rate  float64
}

// Grad returns the gradient buffer, creating it if
// necessary.
func (s *SGD) Grad() anydiff.Grad {
	if s.grad == nil {
		s.grad = anydiff.NewGrad(s.Params...)
	}
	return s.grad
}

// ZeroGrad clears the gradient buffer.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.Grad())
}

// SetEpoch sets the epoch passed to the Rater.
func (s *SGD) SetEpoch(epoch int) {
	s.epoch = epoch
}

// Step takes a step along the (transformed) gradient.
// The objective is not needed for the update itself.
//
// The gradient buffer is modified in place.
func (s *SGD) Step(obj Objective) {
	grad := s.Grad()
	if s.WeightDecay != 0 {
		for v, vec := range grad {
			decay := v.Vector.Copy()
			decay.Scale(decay.Creator().MakeNumeric(s.WeightDecay))
			vec.Add(decay)
		}
	}
	if s.Transformer != nil {
		grad = s.Transformer.Transform(grad)
	}
	s.rate = s.Rater.Rate(float64(s.epoch))
	scaleGrad(grad, -s.rate)
	grad.AddToVars()
}

// StepSize returns the learning rate of the last step.
func (s *SGD) StepSize() float64 {
	return s.rate
}

// StepSizeUnclipped is the same as StepSize, since SGD
// never clips its learning rate.
func (s *SGD) StepSizeUnclipped() float64 {
	return s.rate
}
