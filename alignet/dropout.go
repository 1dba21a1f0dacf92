package alignet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var d Dropout
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDropout)
}

// A Dropout layer applies dropout regularization while
// training.
// In evaluation mode, it scales its input to compute the
// "expected output".
//
// A new Dropout starts in evaluation mode.
type Dropout struct {
	Training bool

	// The probability of keeping any given input.
	KeepProb float64
}

// DeserializeDropout deserializes a Dropout.
// The result is always in evaluation mode.
func DeserializeDropout(d []byte) (*Dropout, error) {
	var keepProb serializer.Float64
	if err := serializer.DeserializeAny(d, &keepProb); err != nil {
		return nil, essentials.AddCtx("deserialize Dropout", err)
	}
	return &Dropout{KeepProb: float64(keepProb)}, nil
}

// SetTraining enables or disables random masking.
func (d *Dropout) SetTraining(training bool) {
	d.Training = training
}

// Apply applies the layer.
func (d *Dropout) Apply(in anydiff.Res, n int) anydiff.Res {
	c := in.Output().Creator()
	if !d.Training {
		return anydiff.Scale(in, c.MakeNumeric(d.KeepProb))
	}
	mask := c.MakeVector(in.Output().Len())
	anyvec.Rand(mask, anyvec.Uniform, nil)
	anyvec.LessThan(mask, c.MakeNumeric(d.KeepProb))
	return anydiff.Mul(in, anydiff.NewConst(mask))
}

// SerializerType returns the unique ID used to serialize
// a Dropout with the serializer package.
func (d *Dropout) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.Dropout"
}

// Serialize serializes the Dropout.
// The training flag is not saved.
func (d *Dropout) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Float64(d.KeepProb))
}
