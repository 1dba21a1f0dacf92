package alignet

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var f FC
	serializer.RegisterTypedDeserializer(f.SerializerType(), DeserializeFC)
}

// FC is a fully-connected layer.
//
// The weights are stored as a row-major OutCount by
// InCount matrix.
type FC struct {
	InCount  int
	OutCount int
	Weights  *anydiff.Var
	Biases   *anydiff.Var
}

// DeserializeFC attempts to deserialize an FC.
func DeserializeFC(d []byte) (*FC, error) {
	var weights, biases *anyvecsave.S
	if err := serializer.DeserializeAny(d, &weights, &biases); err != nil {
		return nil, essentials.AddCtx("deserialize FC", err)
	}
	outCount := biases.Vector.Len()
	if outCount == 0 || weights.Vector.Len()%outCount != 0 {
		return nil, errors.New("deserialize FC: invalid matrix dimensions")
	}
	return &FC{
		InCount:  weights.Vector.Len() / outCount,
		OutCount: outCount,
		Weights:  anydiff.NewVar(weights.Vector),
		Biases:   anydiff.NewVar(biases.Vector),
	}, nil
}

// NewFC creates a new, randomized FC.
//
// Weights are drawn from a normal distribution scaled for
// ReLU inputs, so that the output variance roughly
// matches the input variance.
func NewFC(c anyvec.Creator, in, out int) *FC {
	res := &FC{
		InCount:  in,
		OutCount: out,
		Weights:  anydiff.NewVar(c.MakeVector(in * out)),
		Biases:   anydiff.NewVar(c.MakeVector(out)),
	}
	anyvec.Rand(res.Weights.Vector, anyvec.Normal, nil)
	res.Weights.Vector.Scale(c.MakeNumeric(math.Sqrt(2 / float64(in))))
	return res
}

// Apply applies the layer to a batch of inputs.
func (f *FC) Apply(in anydiff.Res, batch int) anydiff.Res {
	if batch*f.InCount != in.Output().Len() {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			batch*f.InCount, in.Output().Len()))
	}
	product := anydiff.MatMul(false, true,
		&anydiff.Matrix{Data: in, Rows: batch, Cols: f.InCount},
		&anydiff.Matrix{Data: f.Weights, Rows: f.OutCount, Cols: f.InCount},
	)
	return anydiff.AddRepeated(product.Data, f.Biases)
}

// Parameters returns the weights and the biases, in that
// order.
func (f *FC) Parameters() []*anydiff.Var {
	return []*anydiff.Var{f.Weights, f.Biases}
}

// SerializerType returns the unique ID used to serialize
// an FC with the serializer package.
func (f *FC) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.FC"
}

// Serialize serializes the FC.
func (f *FC) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: f.Weights.Vector},
		&anyvecsave.S{Vector: f.Biases.Vector},
	)
}
