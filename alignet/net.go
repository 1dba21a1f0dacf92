// Package alignet provides the classifiers and losses
// trained by the epoch driver.
//
// Networks are built from anydiff-based layers; every
// layer with mode-dependent behavior (dropout, batch
// normalization) follows the training flag set on the
// enclosing Net.
package alignet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n Net
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNet)
}

// A Parameterizer is anything with learnable variables.
//
// The parameters of a Parameterizer must be in the same
// order every time Parameters() is called.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A Layer is a batched computation unit in a network.
//
// The input's length must be divisible by the batch size,
// since the batch size indicates how many equally-long
// vectors are packed into the input vector.
type Layer interface {
	Apply(in anydiff.Res, batchSize int) anydiff.Res
}

// A Trainable is a Layer whose behavior differs between
// training and evaluation.
type Trainable interface {
	SetTraining(training bool)
}

// A Net evaluates a list of layers, one after another.
//
// A Net is a classifier: its output for each sample is a
// vector of class scores.
type Net []Layer

// DeserializeNet attempts to deserialize the network.
func DeserializeNet(d []byte) (Net, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Net", err)
	}
	res := make(Net, len(slice))
	for i, x := range slice {
		if layer, ok := x.(Layer); ok {
			res[i] = layer
		} else {
			return nil, fmt.Errorf("deserialize Net: not a Layer: %T", x)
		}
	}
	return res, nil
}

// NewMLP creates a multi-layer perceptron classifier with
// ReLU hidden activations.
//
// If keepProb is less than 1, a Dropout layer follows
// every hidden activation.
// If batchNorm is set, every hidden FC layer is followed
// by a BatchNorm layer.
func NewMLP(c anyvec.Creator, in int, hidden []int, classes int,
	keepProb float64, batchNorm bool) Net {
	var res Net
	for _, size := range hidden {
		res = append(res, NewFC(c, in, size))
		if batchNorm {
			res = append(res, NewBatchNorm(c, size))
		}
		res = append(res, ReLU)
		if keepProb < 1 {
			res = append(res, &Dropout{KeepProb: keepProb})
		}
		in = size
	}
	return append(res, NewFC(c, in, classes))
}

// A ConvSpec describes one convolutional stage of a CNN.
type ConvSpec struct {
	Filters int
	Size    int
	Stride  int

	// Pool is the span of a max-pooling layer after the
	// activation.
	// If it is 0 or 1, no pooling is done.
	Pool int
}

// NewCNN creates a convolutional classifier for images of
// the given dimensions.
//
// Every stage is a Conv, an optional BatchNorm, a ReLU
// and an optional MaxPool.
// The flattened result feeds an MLP built like NewMLP.
func NewCNN(c anyvec.Creator, width, height, depth int, convs []ConvSpec,
	hidden []int, classes int, keepProb float64, batchNorm bool) Net {
	var res Net
	for _, spec := range convs {
		conv := NewConv(c, width, height, depth, spec.Filters, spec.Size, spec.Stride)
		res = append(res, conv)
		width, height, depth = conv.OutputWidth(), conv.OutputHeight(), conv.OutputDepth()
		if batchNorm {
			res = append(res, NewBatchNorm(c, depth))
		}
		res = append(res, ReLU)
		if spec.Pool > 1 {
			pool := &MaxPool{
				SpanX:       spec.Pool,
				SpanY:       spec.Pool,
				InputWidth:  width,
				InputHeight: height,
				InputDepth:  depth,
			}
			res = append(res, pool)
			width, height = pool.OutputWidth(), pool.OutputHeight()
		}
	}
	return append(res, NewMLP(c, width*height*depth, hidden, classes, keepProb,
		batchNorm)...)
}

// Apply applies the network to a batch.
// If the network contains no layers, the input is
// returned as output.
func (n Net) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	for _, l := range n {
		in = l.Apply(in, batchSize)
	}
	return in
}

// SetTraining switches every Trainable layer between
// training and evaluation mode.
func (n Net) SetTraining(training bool) {
	for _, l := range n {
		if t, ok := l.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}

// Parameters returns the parameters of the network.
//
// Every layer which implements Parameterizer will have
// its parameters added to the slice.
// Parameters are ordered from the first layer onwards.
func (n Net) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range n {
		if p, ok := x.(Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Net with the serializer package.
func (n Net) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.Net"
}

// Serialize attempts to serialize the network.
// If any Layer is not a serializer.Serializer,
// this fails.
func (n Net) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, x := range n {
		if s, ok := x.(serializer.Serializer); ok {
			slice = append(slice, s)
		} else {
			return nil, fmt.Errorf("not a Serializer: %T", x)
		}
	}
	return serializer.SerializeSlice(slice)
}
