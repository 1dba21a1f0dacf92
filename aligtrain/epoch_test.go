package aligtrain

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/cognoscentai/ali-g/aligmetric"
	"github.com/cognoscentai/ali-g/alignet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyvec/anyvec32"
)

func newTestExperiment() (*aligmetric.Experiment, *aligmetric.History, *bytes.Buffer) {
	h := &aligmetric.History{}
	xp := aligmetric.NewExperiment(h)
	buf := &bytes.Buffer{}
	xp.Out = buf
	return xp, h, buf
}

func TestTrainEpochSingleBatch(t *testing.T) {
	model := newBiasModel(4, 4)
	loss := &constLoss{Value: 1}
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	cfg := &Config{WeightDecay: 0.5, SmoothLoss: true}
	xp, h, out := newTestExperiment()
	xp.Epoch = 3

	require.NoError(t, TrainEpoch(model, loss, opt, source, cfg, xp))

	assert.True(t, model.Training)
	assert.Equal(t, 1, source.Restarts)
	assert.Equal(t, []bool{true}, loss.Smooths)
	assert.Equal(t, 1, opt.Zeros)
	assert.Equal(t, []float64{1}, opt.Losses)

	weightNorm := math.Sqrt(32)
	assert.InDelta(t, 50, xp.Train.Acc.Value(), 1e-9)
	assert.InDelta(t, 1, xp.Train.Loss.Value(), 1e-9)
	assert.InDelta(t, weightNorm, xp.Train.WeightNorm.Value(), 1e-9)
	assert.InDelta(t, 0.5*0.5*weightNorm*weightNorm, xp.Train.Reg.Value(), 1e-9)
	assert.InDelta(t, 0.5*0.5*weightNorm*weightNorm+1, xp.Train.Obj.Value(), 1e-9)
	assert.InDelta(t, 0.1, xp.Train.StepSize.Value(), 1e-9)
	assert.InDelta(t, 0.2, xp.Train.StepSizeU.Value(), 1e-9)
	assert.False(t, xp.Train.Acc5.HasData())
	assert.True(t, xp.Train.Timer.HasData())

	assert.Contains(t, out.String(), "\nEpoch: [3] (Train) \t(")
	assert.Contains(t, out.String(), "\tObj 9.000\tLoss 1.000\tAcc 50.00%\t\n")

	series := h.Series("train_obj")
	require.NotNil(t, series)
	last, _ := series.Last()
	assert.Equal(t, 3, last.Time)
	assert.Nil(t, h.Series("train_acc5"))
}

func TestTrainEpochWeightedBatches(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{
		Name: aligdata.TagTrain,
		Batches: []*aligdata.Batch{
			halfCorrectBatch(),
			makeBatch([]int{1}, []float64{0, 1}),
		},
	}
	xp, _, _ := newTestExperiment()
	require.NoError(t, TrainEpoch(model, &constLoss{Value: 2}, opt, source, &Config{}, xp))

	assert.InDelta(t, (50*4+100*1)/5.0, xp.Train.Acc.Value(), 1e-9)
	assert.InDelta(t, 2, xp.Train.Loss.Value(), 1e-9)
	assert.InDelta(t, 2, xp.Train.Obj.Value(), 1e-9)
	assert.Equal(t, 2, xp.Train.Acc.Count())
}

func TestTrainEpochImageNet(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	xp, _, _ := newTestExperiment()
	cfg := &Config{DatasetName: ImageNet}
	require.NoError(t, TrainEpoch(model, &constLoss{Value: 1}, opt, source, cfg, xp))
	assert.True(t, xp.Train.Acc5.HasData())
	assert.InDelta(t, 100, xp.Train.Acc5.Value(), 1e-9)
}

func TestTrainEpochEmpty(t *testing.T) {
	model := newBiasModel(3, 4)
	opt := &recordingOptimizer{Params: model.Parameters()}
	xp, _, _ := newTestExperiment()
	source := &sliceSource{Name: aligdata.TagTrain}
	require.NoError(t, TrainEpoch(model, &constLoss{}, opt, source, &Config{WeightDecay: 1}, xp))
	assert.Equal(t, 0.0, xp.Train.Acc.Value())
	assert.Equal(t, 0.0, xp.Train.Loss.Value())
	assert.InDelta(t, 12.5, xp.Train.Obj.Value(), 1e-9)
}

func TestTrainEpochError(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{
		Name:    aligdata.TagTrain,
		Batches: []*aligdata.Batch{halfCorrectBatch(), halfCorrectBatch()},
		FailAt:  2,
	}
	xp, _, _ := newTestExperiment()
	err := TrainEpoch(model, &constLoss{}, opt, source, &Config{}, xp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt shard")
	assert.Len(t, opt.Losses, 1)
}

func TestTrainEpochAccelerator(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	batches := []*aligdata.Batch{halfCorrectBatch(), makeBatch([]int{1}, []float64{0, 1})}
	source := &sliceSource{Name: aligdata.TagTrain, Batches: batches}
	xp, _, _ := newTestExperiment()

	device := &recordingDevice{}
	cfg := &Config{UseAccelerator: true, Accelerator: device}
	require.NoError(t, TrainEpoch(model, &constLoss{}, opt, source, cfg, xp))

	assert.Equal(t, batches, device.Inputs)
	require.Len(t, device.Moved, 2)
	assert.Same(t, device.Moved[1].Inputs, model.LastInput)
	assert.NotSame(t, batches[1].Inputs, model.LastInput)
	assert.InDelta(t, (50*4+100*1)/5.0, xp.Train.Acc.Value(), 1e-9)
}

func TestTrainEpochNoAccelerator(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	batch := halfCorrectBatch()
	source := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{batch}}
	xp, _, _ := newTestExperiment()

	device := &recordingDevice{}
	cfg := &Config{Accelerator: device}
	require.NoError(t, TrainEpoch(model, &constLoss{}, opt, source, cfg, xp))
	assert.Empty(t, device.Inputs)
	assert.Same(t, batch.Inputs, model.LastInput)
}

func TestTrainEpochMissingAccelerator(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	xp, _, _ := newTestExperiment()

	err := TrainEpoch(model, &constLoss{}, opt, source, &Config{UseAccelerator: true}, xp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relocate batch: no accelerator configured")
	assert.Empty(t, opt.Losses)
}

func TestCreatorDevice(t *testing.T) {
	device := &CreatorDevice{Creator: anyvec32.DefaultCreator{}}
	moved, err := device.Relocate(halfCorrectBatch())
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 1, 1, 0, 0, 1}, moved.Inputs.Data())
	assert.Equal(t, []int{0, 0, 1, 1}, moved.Labels)
	assert.Equal(t, 4, moved.Num)
}

func TestEvalEpochAccelerator(t *testing.T) {
	model := newBiasModel(0, 0)
	batches := []*aligdata.Batch{makeBatch([]int{0}, []float64{1, 0}), halfCorrectBatch()}
	source := &sliceSource{Name: aligdata.TagVal, Batches: batches}
	xp, _, _ := newTestExperiment()

	device := &recordingDevice{}
	cfg := &Config{UseAccelerator: true, Accelerator: device}
	require.NoError(t, EvalEpoch(model, nil, source, cfg, xp))
	assert.Equal(t, batches, device.Inputs)
	require.Len(t, device.Moved, 2)
	assert.Same(t, device.Moved[1].Inputs, model.LastInput)
	assert.InDelta(t, (100*1+50*4)/5.0, xp.Val.Acc.Value(), 1e-9)

	device = &recordingDevice{}
	cfg = &Config{Accelerator: device}
	require.NoError(t, EvalEpoch(model, nil, source, cfg, xp))
	assert.Empty(t, device.Inputs)
	assert.Same(t, batches[1].Inputs, model.LastInput)
}

func TestEvalEpochKeepsNetwork(t *testing.T) {
	net := alignet.NewMLP(testCreator, 2, []int{4}, 2, 0.5, true)
	bn, ok := net[1].(*alignet.BatchNorm)
	require.True(t, ok)

	// Move the running statistics away from their
	// initial values first.
	opt := &recordingOptimizer{Params: net.Parameters()}
	train := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	xp, _, _ := newTestExperiment()
	require.NoError(t, TrainEpoch(net, &constLoss{}, opt, train, &Config{}, xp))

	snapshot := func() [][]float64 {
		var res [][]float64
		for _, p := range net.Parameters() {
			res = append(res, append([]float64{}, mustFloats(p.Vector)...))
		}
		res = append(res, append([]float64{}, mustFloats(bn.RunningMean)...))
		return append(res, append([]float64{}, mustFloats(bn.RunningVar)...))
	}
	before := snapshot()

	val := &sliceSource{Name: aligdata.TagVal, Batches: []*aligdata.Batch{
		halfCorrectBatch(),
		makeBatch([]int{1, 0}, []float64{3, -2}, []float64{-1, 4}),
	}}
	require.NoError(t, EvalEpoch(net, opt, val, &Config{}, xp))
	assert.Equal(t, before, snapshot())
	assert.False(t, bn.Training)
}

func TestEvalEpochWeighted(t *testing.T) {
	model := newBiasModel(0, 0)
	model.Training = true
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{
		Name: aligdata.TagVal,
		Batches: []*aligdata.Batch{
			makeBatch([]int{0, 1, 0}, []float64{2, 1}, []float64{0, 3}, []float64{5, -1}),
			makeBatch([]int{0}, []float64{0, 1}),
		},
	}
	xp, h, out := newTestExperiment()
	xp.Epoch = 2
	before := append([]float64{}, mustFloats(model.Bias.Vector)...)

	require.NoError(t, EvalEpoch(model, opt, source, &Config{}, xp))

	assert.False(t, model.Training)
	assert.InDelta(t, 75, xp.Val.Acc.Value(), 1e-9)
	assert.InDelta(t, 75, xp.MaxVal.Value(), 1e-9)
	assert.False(t, xp.Val.Acc5.HasData())
	assert.False(t, xp.Test.Acc.HasData())
	assert.Equal(t, before, mustFloats(model.Bias.Vector))
	assert.Empty(t, opt.Losses)
	assert.Zero(t, opt.Zeros)

	assert.Contains(t, out.String(), "Epoch: [2] (Val)\t(")
	assert.Contains(t, out.String(), "\tObj ----\tLoss ----\tAcc 75.00% \t\n")
	require.NotNil(t, h.Series("max_val"))
	require.NotNil(t, h.Series("val_acc"))
	require.NotNil(t, h.Series("val_timer"))
}

func TestEvalEpochMaxVal(t *testing.T) {
	model := newBiasModel(0, 0)
	xp, _, _ := newTestExperiment()
	good := &sliceSource{Name: aligdata.TagVal, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	bad := &sliceSource{Name: aligdata.TagVal, Batches: []*aligdata.Batch{
		makeBatch([]int{1}, []float64{1, 0}),
	}}
	perfectTest := &sliceSource{Name: aligdata.TagTest, Batches: []*aligdata.Batch{
		makeBatch([]int{0}, []float64{1, 0}),
	}}

	require.NoError(t, EvalEpoch(model, nil, good, &Config{}, xp))
	assert.InDelta(t, 50, xp.MaxVal.Value(), 1e-9)
	require.NoError(t, EvalEpoch(model, nil, bad, &Config{}, xp))
	assert.InDelta(t, 0, xp.Val.Acc.Value(), 1e-9)
	assert.InDelta(t, 50, xp.MaxVal.Value(), 1e-9)

	require.NoError(t, EvalEpoch(model, nil, perfectTest, &Config{}, xp))
	assert.InDelta(t, 100, xp.Test.Acc.Value(), 1e-9)
	assert.InDelta(t, 50, xp.MaxVal.Value(), 1e-9)
}

func TestEvalEpochTestTag(t *testing.T) {
	model := newBiasModel(0, 0)
	xp, h, out := newTestExperiment()
	source := &sliceSource{Name: aligdata.TagTest, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	require.NoError(t, EvalEpoch(model, nil, source, &Config{DatasetName: ImageNet}, xp))
	assert.False(t, xp.MaxVal.HasData())
	assert.Nil(t, h.Series("max_val"))
	assert.True(t, xp.Test.Acc5.HasData())
	assert.Contains(t, out.String(), "(Test)")
}

func TestEvalEpochEmpty(t *testing.T) {
	xp, _, _ := newTestExperiment()
	source := &sliceSource{Name: aligdata.TagVal}
	require.NoError(t, EvalEpoch(newBiasModel(0, 0), nil, source, &Config{}, xp))
	assert.Equal(t, 0.0, xp.Val.Acc.Value())
}

func TestProgress(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	source := &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}}
	xp, _, _ := newTestExperiment()
	var progress bytes.Buffer
	cfg := &Config{ShowProgress: true, Progress: &progress}
	require.NoError(t, TrainEpoch(model, &constLoss{}, opt, source, cfg, xp))
	assert.Contains(t, progress.String(), "Train Epoch")
	assert.Contains(t, progress.String(), "1/1")

	progress.Reset()
	cfg.ShowProgress = false
	require.NoError(t, TrainEpoch(model, &constLoss{}, opt, source, cfg, xp))
	assert.Empty(t, progress.String())
}

func TestAccuracy(t *testing.T) {
	scores := testCreator.MakeVectorData(testCreator.MakeNumericList([]float64{
		3, 1, 2,
		0, 0, 0,
		1, 2, 3,
	}))
	labels := []int{0, 1, 0}
	assert.InDelta(t, 200.0/3, Accuracy(scores, labels, 1), 1e-9)
	assert.InDelta(t, 200.0/3, Accuracy(scores, labels, 2), 1e-9)
	assert.InDelta(t, 100, Accuracy(scores, labels, 3), 1e-9)
	assert.Equal(t, 0.0, Accuracy(scores, nil, 1))
}

func TestRun(t *testing.T) {
	model := newBiasModel(0, 0)
	opt := &recordingOptimizer{Params: model.Parameters()}
	xp, h, out := newTestExperiment()
	s := &Session{
		Model:     model,
		Loss:      &constLoss{Value: 1},
		Optimizer: opt,
		Train:     &sliceSource{Name: aligdata.TagTrain, Batches: []*aligdata.Batch{halfCorrectBatch()}},
		Val: &sliceSource{Name: aligdata.TagVal, Batches: []*aligdata.Batch{
			makeBatch([]int{0}, []float64{1, 0}),
		}},
		Config:     &Config{},
		Experiment: xp,
	}
	require.NoError(t, Run(context.Background(), s, 3))
	assert.Equal(t, []int{0, 1, 2}, opt.Epochs)
	assert.Equal(t, 2, xp.Epoch)
	assert.Len(t, h.Series("val_acc").Points, 3)
	assert.Len(t, h.Series("train_loss").Points, 3)
	assert.Nil(t, h.Series("test_acc"))
	assert.Equal(t, 3, strings.Count(out.String(), "(Train)"))
	assert.Contains(t, out.String(), "Best validation accuracy: 100.00%")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Run(ctx, s, 1), context.Canceled)
}
