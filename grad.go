package alig

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, vec := range g {
		res[v] = vec.Copy()
	}
	return res
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, vec := range g {
		vec.Scale(vec.Creator().MakeNumeric(s))
	}
}

func zeroGrad(g anydiff.Grad) {
	for _, vec := range g {
		vec.Set(vec.Creator().MakeVector(vec.Len()))
	}
}

// gradSquaredNorm computes the squared Euclidean norm of
// the entire gradient.
func gradSquaredNorm(g anydiff.Grad) float64 {
	var res float64
	for _, vec := range g {
		res += dot(vec, vec)
	}
	return res
}

// projectParams rescales the parameters so that their
// joint Euclidean norm does not exceed maxNorm.
func projectParams(params []*anydiff.Var, maxNorm float64) {
	var sqNorm float64
	for _, p := range params {
		sqNorm += dot(p.Vector, p.Vector)
	}
	norm := math.Sqrt(sqNorm)
	if norm <= maxNorm {
		return
	}
	for _, p := range params {
		p.Vector.Scale(p.Vector.Creator().MakeNumeric(maxNorm / norm))
	}
}

func dot(v1, v2 anyvec.Vector) float64 {
	f1 := floats(v1)
	f2 := floats(v2)
	if len(f1) != len(f2) {
		panic("vector length mismatch")
	}
	var res float64
	for i, x := range f1 {
		res += x * f2[i]
	}
	return res
}

// floats converts the vector into a list of float64
// values, no matter the underlying numeric type.
func floats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return data
	default:
		panic("unsupported numeric type")
	}
}

func valueOrDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}
