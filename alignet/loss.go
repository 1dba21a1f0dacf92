package alignet

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Loss measures the error of a batch of class scores.
//
// The scores are packed row-major, with one row per
// label.
// The result has a single component: the average loss
// over the batch.
//
// The smooth flag selects a smoothed variant of the loss
// for this call only.
type Loss interface {
	Loss(scores anydiff.Res, labels []int, smooth bool) anydiff.Res
}

// SVM is the multi-class hinge loss
//
//     max_j (s[j] + Alpha*[j != y]) - s[y]
//
// When smoothing is requested, the maximum is replaced by
// a log-sum-exp with temperature Tau, making the loss
// differentiable everywhere.
type SVM struct {
	Alpha float64

	// Tau is the smoothing temperature.
	// If it is 0, 1 is used.
	Tau float64
}

// Loss computes the average hinge loss.
func (s *SVM) Loss(scores anydiff.Res, labels []int, smooth bool) anydiff.Res {
	classes := numClasses(scores, labels)
	tau := s.Tau
	if tau == 0 {
		tau = 1
	}

	values := floats(scores.Output())
	deriv := make([]float64, len(values))
	var total float64
	for i, label := range labels {
		row := values[i*classes : (i+1)*classes]
		aug := make([]float64, classes)
		for j, x := range row {
			aug[j] = x
			if j != label {
				aug[j] += s.Alpha
			}
		}
		rowDeriv := deriv[i*classes : (i+1)*classes]
		if smooth {
			total += tau*logSumExp(aug, tau) - row[label]
			softmaxInto(rowDeriv, aug, tau)
		} else {
			maxIdx := argMax(aug)
			total += aug[maxIdx] - row[label]
			rowDeriv[maxIdx] = 1
		}
		rowDeriv[label]--
	}

	c := scores.Output().Creator()
	n := float64(len(labels))
	return &svmRes{
		In:    scores,
		Deriv: deriv,
		Out:   c.MakeVectorData(c.MakeNumericList([]float64{total / n})),
		Scale: 1 / n,
	}
}

type svmRes struct {
	In    anydiff.Res
	Deriv []float64
	Out   anyvec.Vector
	Scale float64
}

func (s *svmRes) Output() anyvec.Vector {
	return s.Out
}

func (s *svmRes) Vars() anydiff.VarSet {
	return s.In.Vars()
}

func (s *svmRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	upstream := floats(u)[0] * s.Scale
	down := make([]float64, len(s.Deriv))
	for i, x := range s.Deriv {
		down[i] = x * upstream
	}
	c := s.Out.Creator()
	s.In.Propagate(c.MakeVectorData(c.MakeNumericList(down)), g)
}

// CrossEntropy is the softmax cross-entropy loss.
//
// When smoothing is requested, the one-hot targets are
// mixed with a uniform distribution (label smoothing).
type CrossEntropy struct {
	// Epsilon is the label smoothing weight.
	// If it is 0, 0.1 is used.
	Epsilon float64
}

// Loss computes the average cross-entropy.
func (c *CrossEntropy) Loss(scores anydiff.Res, labels []int, smooth bool) anydiff.Res {
	classes := numClasses(scores, labels)
	eps := 0.0
	if smooth {
		eps = c.Epsilon
		if eps == 0 {
			eps = 0.1
		}
	}

	desired := make([]float64, len(labels)*classes)
	for i, label := range labels {
		for j := 0; j < classes; j++ {
			desired[i*classes+j] = eps / float64(classes)
		}
		desired[i*classes+label] += 1 - eps
	}

	cr := scores.Output().Creator()
	logProbs := anydiff.LogSoftmax(scores, classes)
	products := anydiff.Mul(anydiff.NewConst(cr.MakeVectorData(cr.MakeNumericList(desired))),
		logProbs)
	total := anydiff.Sum(products)
	return anydiff.Scale(total, cr.MakeNumeric(-1/float64(len(labels))))
}

func numClasses(scores anydiff.Res, labels []int) int {
	if len(labels) == 0 {
		panic("loss of empty batch")
	}
	size := scores.Output().Len()
	if size%len(labels) != 0 {
		panic(fmt.Sprintf("score count %d not divisible by batch size %d", size, len(labels)))
	}
	classes := size / len(labels)
	for _, l := range labels {
		if l < 0 || l >= classes {
			panic(fmt.Sprintf("label %d out of range [0, %d)", l, classes))
		}
	}
	return classes
}

func logSumExp(values []float64, tau float64) float64 {
	max := values[argMax(values)]
	var sum float64
	for _, x := range values {
		sum += math.Exp((x - max) / tau)
	}
	return max/tau + math.Log(sum)
}

func softmaxInto(dst, values []float64, tau float64) {
	max := values[argMax(values)]
	var sum float64
	for i, x := range values {
		dst[i] = math.Exp((x - max) / tau)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
}

func argMax(values []float64) int {
	var idx int
	for i, x := range values {
		if x > values[idx] {
			idx = i
		}
	}
	return idx
}

// floats converts a vector to float64 values.
func floats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}
