package aligdata

import (
	"math/rand"

	"github.com/unixpickle/anyvec"
)

// Blobs describes a synthetic dataset of Gaussian blobs,
// one per class.
//
// Each class has a random center drawn from a normal
// distribution with standard deviation Spread, and its
// samples are normally distributed around that center
// with unit variance.
type Blobs struct {
	Classes int
	Dims    int
	Spread  float64
	Seed    int64
}

// Generate produces count samples with labels cycling
// through the classes.
//
// The centers only depend on b.Seed, so two calls with
// different offsets yield samples from the same
// distribution.
func (b *Blobs) Generate(c anyvec.Creator, count int, offset int64) SliceSampleList {
	centers := b.centers()
	rng := rand.New(rand.NewSource(b.Seed + offset + 1))
	res := make(SliceSampleList, count)
	for i := range res {
		label := i % b.Classes
		vec := make([]float64, b.Dims)
		for j := range vec {
			vec[j] = centers[label][j] + rng.NormFloat64()
		}
		res[i] = &Sample{
			Input: c.MakeVectorData(c.MakeNumericList(vec)),
			Label: label,
		}
	}
	return res
}

func (b *Blobs) centers() [][]float64 {
	rng := rand.New(rand.NewSource(b.Seed))
	res := make([][]float64, b.Classes)
	for i := range res {
		res[i] = make([]float64, b.Dims)
		for j := range res[i] {
			res[i][j] = rng.NormFloat64() * b.Spread
		}
	}
	return res
}
