package alig

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const (
	adamDefaultDecayRate1 = 0.9
	adamDefaultDecayRate2 = 0.999
	adamDefaultDamping    = 1e-8

	rmspropDefaultDecayRate = 0.9
	rmspropDefaultDamping   = 1e-8
)

// Momentum implements heavy-ball momentum as a gradient
// Transformer.
//
// The transformed gradient v is computed as
//
//     v := momentum * v + grad
type Momentum struct {
	Momentum float64
	rolling  anydiff.Grad
}

// Transform transforms the gradient using momentum.
//
// This is not thread-safe.
func (m *Momentum) Transform(g anydiff.Grad) anydiff.Grad {
	if m.rolling == nil {
		m.rolling = copyGrad(g)
		return g
	}
	for v, x := range m.rolling {
		x.Scale(x.Creator().MakeNumeric(m.Momentum))
		x.Add(g[v])
		g[v].Set(x)
	}
	return g
}

// Adam implements the adaptive moments technique
// described in https://arxiv.org/pdf/1412.6980.pdf.
//
// If a field is 0, the default suggested by the paper is
// used.
type Adam struct {
	DecayRate1, DecayRate2 float64
	Damping                float64

	firstMoment  anydiff.Grad
	secondMoment anydiff.Grad
	iteration    float64
}

// Transform replaces the gradient with the bias-corrected
// ratio of its first and second moments.
//
// This is not thread-safe.
func (a *Adam) Transform(g anydiff.Grad) anydiff.Grad {
	rate1 := valueOrDefault(a.DecayRate1, adamDefaultDecayRate1)
	rate2 := valueOrDefault(a.DecayRate2, adamDefaultDecayRate2)

	if a.firstMoment == nil {
		a.firstMoment = anydiff.Grad{}
		a.secondMoment = anydiff.Grad{}
		for v, vec := range g {
			a.firstMoment[v] = vec.Creator().MakeVector(vec.Len())
			a.secondMoment[v] = vec.Creator().MakeVector(vec.Len())
		}
	}
	for v, vec := range g {
		decayInto(a.firstMoment[v], vec.Copy(), rate1)
		sq := vec.Copy()
		anyvec.Pow(sq, sq.Creator().MakeNumeric(2))
		decayInto(a.secondMoment[v], sq, rate2)
	}

	a.iteration++
	correction := math.Sqrt(1-math.Pow(rate2, a.iteration)) /
		(1 - math.Pow(rate1, a.iteration))
	damping := valueOrDefault(a.Damping, adamDefaultDamping)
	for v, vec := range g {
		vec.Set(a.firstMoment[v])
		vec.Scale(vec.Creator().MakeNumeric(correction))

		divisor := a.secondMoment[v].Copy()
		divisor.AddScalar(divisor.Creator().MakeNumeric(damping))
		anyvec.Pow(divisor, divisor.Creator().MakeNumeric(0.5))
		vec.Div(divisor)
	}
	return g
}

// RMSProp divides the gradient by a running root mean
// square of past gradients; see
// http://www.cs.toronto.edu/~tijmen/csc321/slides/lecture_slides_lec6.pdf.
type RMSProp struct {
	// DecayRate defaults to 0.9.
	DecayRate float64

	// Damping defaults to a small constant.
	Damping float64

	moment anydiff.Grad
}

// Transform transforms the gradient using RMSProp.
//
// This is not thread-safe.
func (r *RMSProp) Transform(g anydiff.Grad) anydiff.Grad {
	rate := valueOrDefault(r.DecayRate, rmspropDefaultDecayRate)
	for v, vec := range g {
		sq := vec.Copy()
		anyvec.Pow(sq, sq.Creator().MakeNumeric(2))
		if r.moment == nil {
			r.moment = anydiff.Grad{}
		}
		if m, ok := r.moment[v]; ok {
			decayInto(m, sq, rate)
		} else {
			r.moment[v] = sq
		}
	}
	damping := valueOrDefault(r.Damping, rmspropDefaultDamping)
	for v, vec := range g {
		div := r.moment[v].Copy()
		div.AddScalar(div.Creator().MakeNumeric(damping))
		anyvec.Pow(div, div.Creator().MakeNumeric(-0.5))
		vec.Mul(div)
	}
	return g
}

// decayInto computes
//
//     avg := rate*avg + (1-rate)*sample
//
// in place.
// The sample vector is clobbered.
func decayInto(avg, sample anyvec.Vector, rate float64) {
	avg.Scale(avg.Creator().MakeNumeric(rate))
	sample.Scale(sample.Creator().MakeNumeric(1 - rate))
	avg.Add(sample)
}
