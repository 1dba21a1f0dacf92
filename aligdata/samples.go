// Package aligdata provides labeled image samples and the
// loaders that turn them into batches.
package aligdata

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/anyvec"
)

// A Sample is a labeled classification example.
type Sample struct {
	Input anyvec.Vector
	Label int
}

// A SampleList is a list of classification samples.
type SampleList interface {
	// Len returns the number of samples.
	Len() int

	// Swap swaps two samples.
	Swap(i, j int)

	// Slice generates a shallow copy of a subset of the
	// list.
	Slice(i, j int) SampleList

	// GetSample returns the sample at the index.
	GetSample(idx int) (*Sample, error)
}

// A SliceSampleList is a concrete SampleList with
// predetermined samples.
type SliceSampleList []*Sample

// Len returns the number of samples.
func (s SliceSampleList) Len() int {
	return len(s)
}

// Swap swaps two samples.
func (s SliceSampleList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Slice copies a sub-slice of the list.
func (s SliceSampleList) Slice(i, j int) SampleList {
	return append(SliceSampleList{}, s[i:j]...)
}

// GetSample returns the sample at the index.
func (s SliceSampleList) GetSample(idx int) (*Sample, error) {
	return s[idx], nil
}

// Shuffle shuffles a list of samples in place.
func Shuffle(s SampleList, rng *rand.Rand) {
	for i := 0; i < s.Len(); i++ {
		j := i + rng.Intn(s.Len()-i)
		s.Swap(i, j)
	}
}

// A Batch stores the inputs of several samples packed
// into one vector, along with their labels.
type Batch struct {
	Inputs anyvec.Vector
	Labels []int
	Num    int
}

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
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}
