package alig

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const dfwDefaultEps = 1e-5

// DFW implements the Deep Frank-Wolfe algorithm from
// https://arxiv.org/abs/1811.07591.
//
// Each step solves a proximal problem over the line
// between the current point and the conditional gradient
// in closed form.
// The optimal interpolation factor gamma lies in [0, 1];
// StepSize reports Eta*gamma and StepSizeUnclipped
// reports Eta times the factor before clipping.
type DFW struct {
	Params []*anydiff.Var

	// Eta is the proximal coefficient, playing the role of
	// the learning rate.
	Eta float64

	Momentum    float64
	WeightDecay float64

	// Eps prevents divisions by zero in the line search.
	// If it is 0, a default is used.
	Eps float64

	grad     anydiff.Grad
	buffer   anydiff.Grad
	gamma    float64
	gammaRaw float64
}

// Grad returns the gradient buffer, creating it if
// necessary.
func (d *DFW) Grad() anydiff.Grad {
	if d.grad == nil {
		d.grad = anydiff.NewGrad(d.Params...)
	}
	return d.grad
}

// ZeroGrad clears the gradient buffer.
func (d *DFW) ZeroGrad() {
	zeroGrad(d.Grad())
}

// Step performs the line search and updates the
// parameters.
//
// This is not thread-safe.
func (d *DFW) Step(obj Objective) {
	grad := d.Grad()

	regs := map[*anydiff.Var]anyvec.Vector{}
	for v := range grad {
		r := v.Vector.Copy()
		r.Scale(r.Creator().MakeNumeric(d.WeightDecay))
		regs[v] = r
	}
	d.lineSearch(obj.Loss(), grad, regs)

	for v, delta := range grad {
		// direction := r + gamma*delta
		direction := delta.Copy()
		direction.Scale(direction.Creator().MakeNumeric(d.gamma))
		direction.Add(regs[v])
		direction.Scale(direction.Creator().MakeNumeric(-d.Eta))
		v.Vector.Add(direction)

		if d.Momentum != 0 {
			d.applyMomentum(v, direction)
		}
	}
}

// StepSize returns Eta times the clipped line search
// result of the last step.
func (d *DFW) StepSize() float64 {
	return d.Eta * d.gamma
}

// StepSizeUnclipped returns Eta times the line search
// result of the last step before clipping to [0, 1].
func (d *DFW) StepSizeUnclipped() float64 {
	return d.Eta * d.gammaRaw
}

func (d *DFW) lineSearch(loss float64, grad anydiff.Grad,
	regs map[*anydiff.Var]anyvec.Vector) {
	num := loss
	var denom float64
	for v, delta := range grad {
		num -= d.Eta * dot(delta, regs[v])
		denom += d.Eta * dot(delta, delta)
	}
	d.gammaRaw = num / (denom + valueOrDefault(d.Eps, dfwDefaultEps))
	d.gamma = math.Max(0, math.Min(1, d.gammaRaw))
}

func (d *DFW) applyMomentum(v *anydiff.Var, direction anyvec.Vector) {
	if d.buffer == nil {
		d.buffer = anydiff.NewGrad(d.Params...)
	}
	z := d.buffer[v]
	z.Scale(z.Creator().MakeNumeric(d.Momentum))
	z.Add(direction)

	delta := z.Copy()
	delta.Scale(delta.Creator().MakeNumeric(d.Momentum))
	v.Vector.Add(delta)
}
