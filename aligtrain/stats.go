package aligtrain

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Accuracy computes the percentage of rows whose label is
// among the k highest scores.
//
// The scores are packed row-major with one row per label.
// Ties are resolved in favor of the label.
func Accuracy(scores anyvec.Vector, labels []int, k int) float64 {
	if len(labels) == 0 {
		return 0
	}
	values := mustFloats(scores)
	if len(values)%len(labels) != 0 {
		panic(fmt.Sprintf("score count %d not divisible by batch size %d",
			len(values), len(labels)))
	}
	classes := len(values) / len(labels)
	var correct int
	for i, label := range labels {
		row := values[i*classes : (i+1)*classes]
		var above int
		for _, x := range row {
			if x > row[label] {
				above++
			}
		}
		if above < k {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(labels))
}

// WeightNorm computes the Euclidean norm of all the
// parameters, as if they were one long vector.
func WeightNorm(params []*anydiff.Var) float64 {
	var sum float64
	for _, p := range params {
		for _, x := range mustFloats(p.Vector) {
			sum += x * x
		}
	}
	return math.Sqrt(sum)
}
