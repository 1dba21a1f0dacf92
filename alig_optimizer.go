package alig

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const aligDefaultEps = 1e-5

// ALIG implements the Adaptive Learning-rates for
// Interpolation with Gradients algorithm described in
// https://arxiv.org/abs/1906.05661.
//
// At every step, the step size is computed as
//
//     loss / (||grad||^2 + eps)
//
// and then clipped to MaxLR.
type ALIG struct {
	Params []*anydiff.Var

	// MaxLR is the maximal step size.
	// If it is 0, the step size is never clipped.
	MaxLR float64

	// Momentum is the momentum coefficient.
	// If it is 0, no momentum is used.
	Momentum float64

	// Eps is added to the squared gradient norm to avoid
	// divisions by zero.
	// If it is 0, a default is used.
	Eps float64

	// MaxNorm, if non-zero, constrains the parameters to a
	// Euclidean ball of that radius after every step.
	// This replaces weight decay as the regularizer.
	MaxNorm float64

	grad              anydiff.Grad
	buffer            anydiff.Grad
	stepSize          float64
	stepSizeUnclipped float64
}

// Grad returns the gradient buffer, creating it if
// necessary.
func (a *ALIG) Grad() anydiff.Grad {
	if a.grad == nil {
		a.grad = anydiff.NewGrad(a.Params...)
	}
	return a.grad
}

// ZeroGrad clears the gradient buffer.
func (a *ALIG) ZeroGrad() {
	zeroGrad(a.Grad())
}

// Step computes the step size from the objective and
// updates the parameters.
//
// This is not thread-safe.
func (a *ALIG) Step(obj Objective) {
	grad := a.Grad()
	a.computeStepSize(obj.Loss(), grad)

	for v, g := range grad {
		update := g.Copy()
		update.Scale(update.Creator().MakeNumeric(-a.stepSize))
		v.Vector.Add(update)
		if a.Momentum != 0 {
			a.applyMomentum(v, update)
		}
	}

	if a.MaxNorm != 0 {
		projectParams(a.Params, a.MaxNorm)
	}
}

// StepSize returns the clipped step size of the last
// step.
func (a *ALIG) StepSize() float64 {
	return a.stepSize
}

// StepSizeUnclipped returns the step size of the last
// step before it was clipped to MaxLR.
func (a *ALIG) StepSizeUnclipped() float64 {
	return a.stepSizeUnclipped
}

func (a *ALIG) computeStepSize(loss float64, grad anydiff.Grad) {
	eps := valueOrDefault(a.Eps, aligDefaultEps)
	a.stepSizeUnclipped = loss / (gradSquaredNorm(grad) + eps)
	if a.MaxLR != 0 {
		a.stepSize = math.Min(a.stepSizeUnclipped, a.MaxLR)
	} else {
		a.stepSize = a.stepSizeUnclipped
	}
}

// applyMomentum updates the buffer for v as
//
//     z := momentum * z - step * grad
//
// and then adds momentum * z to the parameter.
func (a *ALIG) applyMomentum(v *anydiff.Var, update anyvec.Vector) {
	if a.buffer == nil {
		a.buffer = anydiff.NewGrad(a.Params...)
	}
	z := a.buffer[v]
	z.Scale(z.Creator().MakeNumeric(a.Momentum))
	z.Add(update)

	delta := z.Copy()
	delta.Scale(delta.Creator().MakeNumeric(a.Momentum))
	v.Vector.Add(delta)
}
