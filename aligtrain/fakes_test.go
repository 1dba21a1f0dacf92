package aligtrain

import (
	"errors"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/cognoscentai/ali-g"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

var testCreator = anyvec64.DefaultCreator{}

// biasModel adds a learned bias to its inputs, which are
// already class scores.
type biasModel struct {
	Bias *anydiff.Var

	Training  bool
	LastInput anyvec.Vector
}

func newBiasModel(bias ...float64) *biasModel {
	c := testCreator
	return &biasModel{Bias: anydiff.NewVar(c.MakeVectorData(c.MakeNumericList(bias)))}
}

func (b *biasModel) SetTraining(t bool) {
	b.Training = t
}

func (b *biasModel) Apply(in anydiff.Res, n int) anydiff.Res {
	b.LastInput = in.Output()
	return anydiff.AddRepeated(in, b.Bias)
}

func (b *biasModel) Parameters() []*anydiff.Var {
	return []*anydiff.Var{b.Bias}
}

// constLoss always reports the same value, but still
// depends on the scores.
type constLoss struct {
	Value   float64
	Smooths []bool
}

func (c *constLoss) Loss(scores anydiff.Res, labels []int, smooth bool) anydiff.Res {
	c.Smooths = append(c.Smooths, smooth)
	cr := scores.Output().Creator()
	zero := anydiff.Scale(anydiff.Sum(scores), cr.MakeNumeric(0))
	return anydiff.AddScalar(zero, cr.MakeNumeric(c.Value))
}

// recordingOptimizer records its calls without changing
// any parameter.
type recordingOptimizer struct {
	Params []*anydiff.Var

	grad     anydiff.Grad
	Zeros    int
	Losses   []float64
	Epochs   []int
	stepSize float64
}

func (r *recordingOptimizer) Grad() anydiff.Grad {
	if r.grad == nil {
		r.grad = anydiff.NewGrad(r.Params...)
	}
	return r.grad
}

func (r *recordingOptimizer) ZeroGrad() {
	r.Zeros++
}

func (r *recordingOptimizer) Step(obj alig.Objective) {
	r.Losses = append(r.Losses, obj.Loss())
	r.stepSize = 0.1
}

func (r *recordingOptimizer) StepSize() float64 {
	return r.stepSize
}

func (r *recordingOptimizer) StepSizeUnclipped() float64 {
	return 2 * r.stepSize
}

func (r *recordingOptimizer) SetEpoch(epoch int) {
	r.Epochs = append(r.Epochs, epoch)
}

// sliceSource serves pre-built batches.
type sliceSource struct {
	Name     string
	Batches  []*aligdata.Batch
	FailAt   int
	Restarts int
}

func (s *sliceSource) Tag() string {
	return s.Name
}

func (s *sliceSource) Len() int {
	return len(s.Batches)
}

func (s *sliceSource) Batch(idx int) (*aligdata.Batch, error) {
	if s.FailAt > 0 && idx == s.FailAt-1 {
		return nil, errors.New("corrupt shard")
	}
	return s.Batches[idx], nil
}

func (s *sliceSource) Restart() {
	s.Restarts++
}

// makeBatch builds a batch of two-class score rows.
func makeBatch(labels []int, rows ...[]float64) *aligdata.Batch {
	var data []float64
	for _, r := range rows {
		data = append(data, r...)
	}
	return &aligdata.Batch{
		Inputs: testCreator.MakeVectorData(testCreator.MakeNumericList(data)),
		Labels: labels,
		Num:    len(labels),
	}
}

// halfCorrectBatch has four samples, two of them
// classified correctly.
func halfCorrectBatch() *aligdata.Batch {
	return makeBatch([]int{0, 0, 1, 1}, []float64{1, 0}, []float64{0, 1},
		[]float64{1, 0}, []float64{0, 1})
}

// recordingDevice copies every batch onto testCreator and
// keeps the copies.
type recordingDevice struct {
	Inputs []*aligdata.Batch
	Moved  []*aligdata.Batch
}

func (r *recordingDevice) Relocate(b *aligdata.Batch) (*aligdata.Batch, error) {
	moved, err := (&CreatorDevice{Creator: testCreator}).Relocate(b)
	if err != nil {
		return nil, err
	}
	r.Inputs = append(r.Inputs, b)
	r.Moved = append(r.Moved, moved)
	return moved, nil
}
