// Package aligtrain drives training and evaluation
// epochs of a classifier.
//
// Each epoch iterates over a BatchSource, runs the model
// (and, when training, the loss, backward pass and
// optimizer), and accumulates the results into the
// metrics of an aligmetric.Experiment.
package aligtrain

import (
	"io"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/cognoscentai/ali-g/aligmetric"
	"github.com/cognoscentai/ali-g"
	"github.com/cognoscentai/ali-g/alignet"
	"github.com/unixpickle/anydiff"
)

// ImageNet is the dataset name which enables top-5
// accuracy tracking.
const ImageNet = "imagenet"

// A Model is a classifier which maps a batch of packed
// inputs to a batch of packed class scores.
type Model interface {
	alignet.Parameterizer

	// SetTraining switches between training and evaluation
	// behavior.
	SetTraining(training bool)

	Apply(in anydiff.Res, batchSize int) anydiff.Res
}

// A BatchSource produces the batches of one data split.
type BatchSource interface {
	// Tag returns the split name, such as "train", "val" or
	// "test".
	Tag() string

	// Len returns the number of batches.
	Len() int

	// Batch returns the batch at the index.
	Batch(idx int) (*aligdata.Batch, error)
}

// A Restarter is a BatchSource which needs to be told
// when a new pass begins, for example to reshuffle.
type Restarter interface {
	Restart()
}

// Config stores the options of the epoch functions.
type Config struct {
	// UseAccelerator, if set, moves every batch through
	// Accelerator before it reaches the model.
	UseAccelerator bool
	Accelerator    Device

	// SmoothLoss enables the smoothed loss during
	// training.
	SmoothLoss bool

	// DatasetName enables top-5 accuracy when it is
	// ImageNet.
	DatasetName string

	WeightDecay float64

	// ShowProgress enables a progress line on Progress
	// (or os.Stderr if Progress is nil).
	ShowProgress bool
	Progress     io.Writer
}

// A Session holds everything needed to run a sequence of
// epochs.
//
// Val and Test may be nil.
type Session struct {
	Model      Model
	Loss       alignet.Loss
	Optimizer  alig.Optimizer
	Train      BatchSource
	Val        BatchSource
	Test       BatchSource
	Config     *Config
	Experiment *aligmetric.Experiment
}
