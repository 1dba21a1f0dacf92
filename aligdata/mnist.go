package aligdata

import (
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/mnist"
)

// MNISTClasses is the number of MNIST digit classes.
const MNISTClasses = 10

// MNISTWidth is the side length of the square MNIST
// images.
const MNISTWidth = 28

// MNISTInputSize is the number of pixels in an MNIST
// image.
const MNISTInputSize = MNISTWidth * MNISTWidth

// MNIST loads the MNIST training or testing set.
//
// Inputs are the pixel intensities in [0, 1], shifted to
// be centered around 0.
func MNIST(c anyvec.Creator, training bool) SliceSampleList {
	var ds mnist.DataSet
	if training {
		ds = mnist.LoadTrainingDataSet()
	} else {
		ds = mnist.LoadTestingDataSet()
	}
	res := make(SliceSampleList, len(ds.Samples))
	for i, sample := range ds.Samples {
		pixels := make([]float64, len(sample.Intensities))
		for j, x := range sample.Intensities {
			pixels[j] = x - 0.5
		}
		res[i] = &Sample{
			Input: c.MakeVectorData(c.MakeNumericList(pixels)),
			Label: sample.Label,
		}
	}
	return res
}
