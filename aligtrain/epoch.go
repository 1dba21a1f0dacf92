package aligtrain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/cognoscentai/ali-g/aligmetric"
	"github.com/cognoscentai/ali-g"
	"github.com/cognoscentai/ali-g/alignet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
)

// TrainEpoch runs one pass over the training batches,
// updating the model's parameters and xp.Train.
//
// Once every batch has been processed, the weight norm,
// the regularization term and the objective are
// computed, a summary is printed to xp.Writer(), and
// every training metric is logged at xp.Epoch.
func TrainEpoch(model Model, loss alignet.Loss, opt alig.Optimizer, batches BatchSource,
	cfg *Config, xp *aligmetric.Experiment) error {
	model.SetTraining(true)
	group := xp.Train
	group.Reset()
	restart(batches)

	bar := newProgress(cfg, "Train Epoch", batches.Len())
	for i := 0; i < batches.Len(); i++ {
		batch, err := fetchBatch(batches, i, cfg)
		if err != nil {
			return essentials.AddCtx("train epoch", err)
		}

		scores := model.Apply(anydiff.NewConst(batch.Inputs), batch.Num)
		cost := loss.Loss(scores, batch.Labels, cfg.SmoothLoss)
		lossValue := mustFloats(cost.Output())[0]

		opt.ZeroGrad()
		backward(cost, opt.Grad())
		opt.Step(alig.Scalar(lossValue))

		n := float64(batch.Num)
		group.Acc.Update(Accuracy(scores.Output(), batch.Labels, 1), n)
		group.Loss.Update(lossValue, n)
		group.StepSize.Update(opt.StepSize(), n)
		group.StepSizeU.Update(opt.StepSizeUnclipped(), n)
		if cfg.DatasetName == ImageNet {
			group.Acc5.Update(Accuracy(scores.Output(), batch.Labels, 5), n)
		}
		bar.Step()
	}
	bar.Done()

	group.WeightNorm.Update(WeightNorm(model.Parameters()), 1)
	group.Reg.Update(0.5*cfg.WeightDecay*square(group.WeightNorm.Value()), 1)
	group.Obj.Update(group.Reg.Value()+group.Loss.Value(), 1)
	group.Timer.Update()

	fmt.Fprintf(xp.Writer(), "\nEpoch: [%d] (Train) \t(%.2fs) \tObj %.3f\tLoss %.3f\tAcc %.2f%%\t\n",
		xp.Epoch, group.Timer.Value(), group.Obj.Value(), group.Loss.Value(),
		group.Acc.Value())

	group.Log(xp.Epoch)
	return nil
}

// EvalEpoch runs one pass over a validation or test
// split without touching the model's parameters.
//
// The "val" tag updates xp.Val and xp.MaxVal; any other
// tag updates xp.Test.
//
// The optimizer is not used.
func EvalEpoch(model Model, opt alig.Optimizer, batches BatchSource, cfg *Config,
	xp *aligmetric.Experiment) error {
	model.SetTraining(false)
	tag := batches.Tag()
	group := xp.EvalGroup(tag)
	group.Reset()
	restart(batches)

	bar := newProgress(cfg, titleCase(tag)+" Epoch", batches.Len())
	for i := 0; i < batches.Len(); i++ {
		batch, err := fetchBatch(batches, i, cfg)
		if err != nil {
			return essentials.AddCtx("evaluate "+tag, err)
		}
		scores := model.Apply(anydiff.NewConst(batch.Inputs), batch.Num).Output()
		n := float64(batch.Num)
		group.Acc.Update(Accuracy(scores, batch.Labels, 1), n)
		if cfg.DatasetName == ImageNet {
			group.Acc5.Update(Accuracy(scores, batch.Labels, 5), n)
		}
		bar.Step()
	}
	bar.Done()

	group.Timer.Update()

	fmt.Fprintf(xp.Writer(), "Epoch: [%d] (%s)\t(%.2fs) \tObj ----\tLoss ----\tAcc %.2f%% \t\n",
		xp.Epoch, titleCase(tag), group.Timer.Value(), group.Acc.Value())

	if tag == aligdata.TagVal {
		xp.MaxVal.Update(xp.Val.Acc.Value())
		xp.MaxVal.Log(xp.Epoch)
	}

	group.Log(xp.Epoch)
	return nil
}

func fetchBatch(b BatchSource, idx int, cfg *Config) (*aligdata.Batch, error) {
	batch, err := b.Batch(idx)
	if err != nil {
		return nil, err
	}
	if cfg.UseAccelerator {
		if cfg.Accelerator == nil {
			return nil, essentials.AddCtx("relocate batch",
				errors.New("no accelerator configured"))
		}
		return cfg.Accelerator.Relocate(batch)
	}
	return batch, nil
}

// backward propagates a one-component cost into g.
func backward(cost anydiff.Res, g anydiff.Grad) {
	c := cost.Output().Creator()
	upstream := c.MakeVector(1)
	upstream.AddScalar(c.MakeNumeric(1))
	cost.Propagate(upstream, g)
}

func restart(b BatchSource) {
	if r, ok := b.(Restarter); ok {
		r.Restart()
	}
}

func titleCase(tag string) string {
	if tag == "" {
		return tag
	}
	return strings.ToUpper(tag[:1]) + tag[1:]
}

func square(x float64) float64 {
	return x * x
}
