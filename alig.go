// Package alig provides the optimizers used to train
// classifiers with this module.
//
// The headline optimizer is ALI-G, which derives its
// step size from the current loss value and the norm of
// the gradient, clipping it to a maximal learning rate.
// Deep Frank-Wolfe and plain SGD (with optional gradient
// transformers such as Adam) are included for
// comparison.
package alig

import "github.com/unixpickle/anydiff"

// An Objective supplies the loss value that an Optimizer
// needs in order to take a step.
//
// Optimizers with adaptive step sizes, such as ALIG and
// DFW, read the loss exactly once per step.
type Objective interface {
	Loss() float64
}

// Scalar is an Objective whose loss has already been
// computed.
type Scalar float64

// Loss returns float64(s).
func (s Scalar) Loss() float64 {
	return float64(s)
}

// An Optimizer updates a set of parameters from the
// gradient stored in its own gradient buffer.
//
// A typical iteration clears the buffer with ZeroGrad,
// propagates a cost into Grad, and then calls Step.
type Optimizer interface {
	// Grad returns the gradient buffer.
	// The buffer is owned by the optimizer and contains one
	// entry per parameter.
	Grad() anydiff.Grad

	// ZeroGrad clears the gradient buffer.
	ZeroGrad()

	// Step updates the parameters using the gradient buffer.
	Step(obj Objective)

	// StepSize returns the step size used by the most
	// recent call to Step.
	StepSize() float64

	// StepSizeUnclipped returns the step size used by the
	// most recent Step before any clipping was applied.
	StepSizeUnclipped() float64
}

// An EpochSetter is an Optimizer whose behavior depends on
// the current epoch, such as SGD with a Rater.
type EpochSetter interface {
	SetEpoch(epoch int)
}

// A Transformer transforms gradients.
// For example, pre-conditioning could be implemented as a
// transformer.
//
// After its first call, a Transformer expects to see
// gradients of the same form (i.e. containing the same
// variables).
//
// A Transformer may modify its input and return it as
// the output.
type Transformer interface {
	Transform(g anydiff.Grad) anydiff.Grad
}
