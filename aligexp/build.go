package aligexp

import (
	"fmt"
	"math/rand"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/cognoscentai/ali-g/aligmetric"
	"github.com/cognoscentai/ali-g/aligtrain"
	"github.com/cognoscentai/ali-g"
	"github.com/cognoscentai/ali-g/alignet"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
)

// Build creates a training session for the settings.
//
// Every metric of the session logs to r, which may be
// nil.
func Build(s *Settings, r aligmetric.Recorder) (*aligtrain.Session, error) {
	if err := s.Validate(); err != nil {
		return nil, essentials.AddCtx("build session", err)
	}

	host := hostCreator(s)
	modelCreator := host
	cfg := &aligtrain.Config{
		SmoothLoss:   s.Loss.Smooth,
		DatasetName:  s.Dataset,
		WeightDecay:  s.Optimizer.WeightDecay,
		ShowProgress: s.Progress,
	}
	if s.UseAccelerator {
		modelCreator = anyvec32.CurrentCreator()
		cfg.UseAccelerator = true
		cfg.Accelerator = &aligtrain.CreatorDevice{Creator: modelCreator}
	}

	data, err := LoadData(s, host)
	if err != nil {
		return nil, essentials.AddCtx("build session", err)
	}

	model := NewModel(s, modelCreator, data)

	session := &aligtrain.Session{
		Model:      model,
		Loss:       NewLoss(s),
		Optimizer:  NewOptimizer(s, model.Parameters()),
		Config:     cfg,
		Experiment: aligmetric.NewExperiment(r),
		Train: &aligdata.Loader{
			Samples:   data.Train,
			BatchSize: s.BatchSize,
			Name:      aligdata.TagTrain,
			Rand:      rand.New(rand.NewSource(s.Seed)),
			MaxGos:    s.Workers,
		},
	}
	if data.Val.Len() > 0 {
		session.Val = &aligdata.Loader{
			Samples:   data.Val,
			BatchSize: s.BatchSize,
			Name:      aligdata.TagVal,
			MaxGos:    s.Workers,
		}
	}
	if data.Test.Len() > 0 {
		session.Test = &aligdata.Loader{
			Samples:   data.Test,
			BatchSize: s.BatchSize,
			Name:      aligdata.TagTest,
			MaxGos:    s.Workers,
		}
	}
	return session, nil
}

// Data stores the splits of a dataset.
type Data struct {
	Train aligdata.SampleList
	Val   aligdata.SampleList
	Test  aligdata.SampleList

	InputSize int
	Classes   int

	// Image dimensions, or 0 for flat inputs.
	Width  int
	Height int
	Depth  int
}

// LoadData loads the dataset named by the settings and
// carves a validation split out of the training samples.
func LoadData(s *Settings, c anyvec.Creator) (*Data, error) {
	var train, test aligdata.SliceSampleList
	res := &Data{}
	switch s.Dataset {
	case DatasetMNIST:
		train = aligdata.MNIST(c, true)
		test = aligdata.MNIST(c, false)
		res.InputSize = aligdata.MNISTInputSize
		res.Classes = aligdata.MNISTClasses
		res.Width = aligdata.MNISTWidth
		res.Height = aligdata.MNISTWidth
		res.Depth = 1
	case DatasetBlobs:
		b := &aligdata.Blobs{
			Classes: s.Blobs.Classes,
			Dims:    s.Blobs.Dims,
			Spread:  s.Blobs.Spread,
			Seed:    s.Seed,
		}
		train = b.Generate(c, s.Blobs.Train, 0)
		test = b.Generate(c, s.Blobs.Test, 1)
		res.InputSize = s.Blobs.Dims
		res.Classes = s.Blobs.Classes
	default:
		return nil, fmt.Errorf("load data: unknown dataset: %q", s.Dataset)
	}
	res.Val, res.Train = aligdata.HashSplit(train, s.ValFraction)
	res.Test = test
	return res, nil
}

// NewModel creates the classifier described by the
// settings.
//
// A CNN is only built when conv layers are configured;
// the data must then be an image dataset.
func NewModel(s *Settings, c anyvec.Creator, data *Data) alignet.Net {
	m := s.Model
	if len(m.Conv) == 0 {
		return alignet.NewMLP(c, data.InputSize, m.Hidden, data.Classes, m.KeepProb,
			m.BatchNorm)
	}
	specs := make([]alignet.ConvSpec, len(m.Conv))
	for i, conv := range m.Conv {
		specs[i] = alignet.ConvSpec{
			Filters: conv.Filters,
			Size:    conv.Size,
			Stride:  conv.Stride,
			Pool:    conv.Pool,
		}
	}
	return alignet.NewCNN(c, data.Width, data.Height, data.Depth, specs, m.Hidden,
		data.Classes, m.KeepProb, m.BatchNorm)
}

// NewLoss creates the loss named by the settings.
func NewLoss(s *Settings) alignet.Loss {
	switch s.Loss.Name {
	case LossCrossEntropy:
		return &alignet.CrossEntropy{Epsilon: s.Loss.Epsilon}
	default:
		return &alignet.SVM{Alpha: s.Loss.Alpha, Tau: s.Loss.Tau}
	}
}

// NewOptimizer creates the optimizer named by the
// settings.
func NewOptimizer(s *Settings, params []*anydiff.Var) alig.Optimizer {
	o := s.Optimizer
	switch o.Name {
	case OptDFW:
		return &alig.DFW{
			Params:      params,
			Eta:         o.LR,
			Momentum:    o.Momentum,
			WeightDecay: o.WeightDecay,
		}
	case OptSGD, OptAdam, OptRMSProp:
		sgd := &alig.SGD{
			Params:      params,
			Rater:       newRater(o),
			WeightDecay: o.WeightDecay,
		}
		switch o.Name {
		case OptAdam:
			sgd.Transformer = &alig.Adam{}
		case OptRMSProp:
			sgd.Transformer = &alig.RMSProp{}
		default:
			if o.Momentum > 0 {
				sgd.Transformer = &alig.Momentum{Momentum: o.Momentum}
			}
		}
		return sgd
	default:
		return &alig.ALIG{
			Params:   params,
			MaxLR:    o.LR,
			Momentum: o.Momentum,
			MaxNorm:  o.MaxNorm,
		}
	}
}

func newRater(o OptimizerSettings) alig.Rater {
	if len(o.Milestones) == 0 {
		return alig.ConstRater(o.LR)
	}
	return &alig.StepDecayRater{
		Initial:    o.LR,
		Factor:     o.DecayFactor,
		Milestones: o.Milestones,
	}
}

func hostCreator(s *Settings) anyvec.Creator {
	if s.Precision == 64 {
		return anyvec64.DefaultCreator{}
	}
	return anyvec32.DefaultCreator{}
}
