package alignet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	defaultBNStabilizer = 1e-3
	defaultBNMomentum   = 0.1
)

func init() {
	var b BatchNorm
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBatchNorm)
}

// BatchNorm is a batch normalization layer.
//
// While training, inputs are normalized with the
// statistics of the current batch, and those statistics
// are folded into running averages.
// In evaluation mode, the running averages are used
// instead, so the output for a sample does not depend on
// the rest of its batch.
type BatchNorm struct {
	// InputCount indicates how many components to normalize.
	InputCount int

	// Post-normalization affine transform.
	Scalers *anydiff.Var
	Biases  *anydiff.Var

	// Running statistics used in evaluation mode.
	// These are not learnable parameters.
	RunningMean anyvec.Vector
	RunningVar  anyvec.Vector

	// Stabilizer is added to variances to keep them from
	// being 0.
	// If it is 0, a default is used.
	Stabilizer float64

	// Momentum is the weight of each new batch in the
	// running statistics.
	// If it is 0, a default is used.
	Momentum float64

	Training bool
}

// DeserializeBatchNorm deserializes a BatchNorm.
// The result is always in evaluation mode.
func DeserializeBatchNorm(d []byte) (*BatchNorm, error) {
	var s, b, mean, variance *anyvecsave.S
	var stab, momentum serializer.Float64
	err := serializer.DeserializeAny(d, &s, &b, &mean, &variance, &stab, &momentum)
	if err != nil {
		return nil, essentials.AddCtx("deserialize BatchNorm", err)
	}
	return &BatchNorm{
		InputCount:  s.Vector.Len(),
		Scalers:     anydiff.NewVar(s.Vector),
		Biases:      anydiff.NewVar(b.Vector),
		RunningMean: mean.Vector,
		RunningVar:  variance.Vector,
		Stabilizer:  float64(stab),
		Momentum:    float64(momentum),
	}, nil
}

// NewBatchNorm creates a BatchNorm with an input size.
func NewBatchNorm(c anyvec.Creator, inCount int) *BatchNorm {
	oneScaler := c.MakeVector(inCount)
	oneScaler.AddScalar(c.MakeNumeric(1))
	return &BatchNorm{
		InputCount:  inCount,
		Scalers:     anydiff.NewVar(oneScaler),
		Biases:      anydiff.NewVar(c.MakeVector(inCount)),
		RunningMean: c.MakeVector(inCount),
		RunningVar:  oneScaler.Copy(),
	}
}

// SetTraining switches between batch statistics and
// running statistics.
func (b *BatchNorm) SetTraining(training bool) {
	b.Training = training
}

// Apply applies the layer to some inputs.
func (b *BatchNorm) Apply(in anydiff.Res, batch int) anydiff.Res {
	if in.Output().Len()%b.InputCount != 0 {
		panic("invalid input size")
	}
	if !b.Training {
		return b.applyRunning(in)
	}
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		c := in.Output().Creator()

		negMean := negMeanRows(in, b.InputCount)
		secondMoment := meanSquare(in, b.InputCount)
		variance := anydiff.Sub(secondMoment, anydiff.Square(negMean))
		b.track(negMean.Output(), variance.Output())

		variance = anydiff.AddScalar(variance, c.MakeNumeric(b.stabilizer()))
		normalizer := anydiff.Pow(variance, c.MakeNumeric(-0.5))

		totalScaler := anydiff.Mul(b.Scalers, normalizer)
		return anydiff.Pool(totalScaler, func(totalScaler anydiff.Res) anydiff.Res {
			return anydiff.ScaleAddRepeated(
				in,
				totalScaler,
				anydiff.Add(b.Biases, anydiff.Mul(negMean, totalScaler)),
			)
		})
	})
}

// Parameters returns a slice containing the scales and
// biases, in that order.
func (b *BatchNorm) Parameters() []*anydiff.Var {
	return []*anydiff.Var{b.Scalers, b.Biases}
}

// SerializerType returns the unique ID used to serialize
// a BatchNorm with the serializer package.
func (b *BatchNorm) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.BatchNorm"
}

// Serialize serializes the layer.
func (b *BatchNorm) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: b.Scalers.Vector},
		&anyvecsave.S{Vector: b.Biases.Vector},
		&anyvecsave.S{Vector: b.RunningMean},
		&anyvecsave.S{Vector: b.RunningVar},
		serializer.Float64(b.Stabilizer),
		serializer.Float64(b.Momentum),
	)
}

func (b *BatchNorm) applyRunning(in anydiff.Res) anydiff.Res {
	c := in.Output().Creator()
	invStd := b.RunningVar.Copy()
	invStd.AddScalar(c.MakeNumeric(b.stabilizer()))
	anyvec.Pow(invStd, c.MakeNumeric(-0.5))

	negMean := b.RunningMean.Copy()
	negMean.Scale(c.MakeNumeric(-1))

	totalScaler := anydiff.Mul(b.Scalers, anydiff.NewConst(invStd))
	return anydiff.Pool(totalScaler, func(totalScaler anydiff.Res) anydiff.Res {
		return anydiff.ScaleAddRepeated(
			in,
			totalScaler,
			anydiff.Add(b.Biases, anydiff.Mul(anydiff.NewConst(negMean), totalScaler)),
		)
	})
}

// track folds batch statistics into the running
// averages.
func (b *BatchNorm) track(negMean, variance anyvec.Vector) {
	c := negMean.Creator()
	m := b.Momentum
	if m == 0 {
		m = defaultBNMomentum
	}

	mean := negMean.Copy()
	mean.Scale(c.MakeNumeric(-m))
	b.RunningMean.Scale(c.MakeNumeric(1 - m))
	b.RunningMean.Add(mean)

	v := variance.Copy()
	v.Scale(c.MakeNumeric(m))
	b.RunningVar.Scale(c.MakeNumeric(1 - m))
	b.RunningVar.Add(v)
}

func (b *BatchNorm) stabilizer() float64 {
	if b.Stabilizer == 0 {
		return defaultBNStabilizer
	}
	return b.Stabilizer
}
