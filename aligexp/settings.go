// Package aligexp turns an experiment description into a
// ready-to-run training session.
package aligexp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// Dataset names.
const (
	DatasetMNIST = "mnist"
	DatasetBlobs = "blobs"
)

// Loss names.
const (
	LossSVM          = "svm"
	LossCrossEntropy = "ce"
)

// Optimizer names.
const (
	OptALIG    = "alig"
	OptDFW     = "dfw"
	OptSGD     = "sgd"
	OptAdam    = "adam"
	OptRMSProp = "rmsprop"
)

// Settings describes an experiment.
type Settings struct {
	Dataset   string `yaml:"dataset"`
	Epochs    int    `yaml:"epochs"`
	BatchSize int    `yaml:"batch_size"`
	Seed      int64  `yaml:"seed"`

	// ValFraction is the fraction of the training set
	// held out for validation.
	ValFraction float64 `yaml:"val_fraction"`

	// Precision is 32 or 64.
	Precision      int  `yaml:"precision"`
	UseAccelerator bool `yaml:"use_accelerator"`
	Workers        int  `yaml:"workers"`
	Progress       bool `yaml:"progress"`

	Model     ModelSettings     `yaml:"model"`
	Loss      LossSettings      `yaml:"loss"`
	Optimizer OptimizerSettings `yaml:"optimizer"`
	Blobs     BlobSettings      `yaml:"blobs"`
}

// ModelSettings describes the classifier.
//
// If Conv is non-empty, the hidden layers follow a stack
// of convolutions, which only works for image datasets.
type ModelSettings struct {
	Conv      []ConvSettings `yaml:"conv"`
	Hidden    []int          `yaml:"hidden"`
	KeepProb  float64        `yaml:"keep_prob"`
	BatchNorm bool           `yaml:"batch_norm"`
}

// ConvSettings describes one convolutional stage.
// A Pool of 0 disables max pooling.
type ConvSettings struct {
	Filters int `yaml:"filters"`
	Size    int `yaml:"size"`
	Stride  int `yaml:"stride"`
	Pool    int `yaml:"pool"`
}

// LossSettings describes the loss.
type LossSettings struct {
	Name    string  `yaml:"name"`
	Smooth  bool    `yaml:"smooth"`
	Alpha   float64 `yaml:"alpha"`
	Tau     float64 `yaml:"tau"`
	Epsilon float64 `yaml:"epsilon"`
}

// OptimizerSettings describes the optimizer.
//
// LR is the maximal step size for ALI-G, the proximal
// coefficient for DFW, and the initial learning rate for
// the SGD variants.
type OptimizerSettings struct {
	Name        string    `yaml:"name"`
	LR          float64   `yaml:"lr"`
	Momentum    float64   `yaml:"momentum"`
	WeightDecay float64   `yaml:"weight_decay"`
	MaxNorm     float64   `yaml:"max_norm"`
	Milestones  []float64 `yaml:"milestones"`
	DecayFactor float64   `yaml:"decay_factor"`
}

// BlobSettings describes the synthetic dataset.
type BlobSettings struct {
	Classes int     `yaml:"classes"`
	Dims    int     `yaml:"dims"`
	Spread  float64 `yaml:"spread"`
	Train   int     `yaml:"train"`
	Test    int     `yaml:"test"`
}

// Overrides captures command-line values.
// Zero values leave the settings unchanged.
type Overrides struct {
	Dataset   string
	Epochs    int
	BatchSize int
	Seed      int64
	Optimizer string
	LR        float64
	Loss      string
	Progress  bool
}

// DefaultSettings returns settings for a quick run on
// synthetic data.
func DefaultSettings() *Settings {
	return &Settings{
		Dataset:     DatasetBlobs,
		Epochs:      10,
		BatchSize:   64,
		Seed:        1,
		ValFraction: 0.1,
		Precision:   32,
		Model: ModelSettings{
			Hidden:   []int{64},
			KeepProb: 1,
		},
		Loss: LossSettings{
			Name:  LossSVM,
			Alpha: 1,
		},
		Optimizer: OptimizerSettings{
			Name: OptALIG,
			LR:   0.1,
		},
		Blobs: BlobSettings{
			Classes: 4,
			Dims:    8,
			Spread:  3,
			Train:   2000,
			Test:    500,
		},
	}
}

// Load reads settings from a YAML file on top of
// DefaultSettings, then validates them.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load settings", err)
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, essentials.AddCtx("load settings", err)
	}
	return s, nil
}

// Parse decodes YAML settings on top of DefaultSettings
// and validates them.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && err != io.EOF {
		return nil, essentials.AddCtx("parse settings", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyOverrides updates s using any non-zero override.
func (s *Settings) ApplyOverrides(o Overrides) {
	if o.Dataset != "" {
		s.Dataset = o.Dataset
	}
	if o.Epochs > 0 {
		s.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		s.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		s.Seed = o.Seed
	}
	if o.Optimizer != "" {
		s.Optimizer.Name = o.Optimizer
	}
	if o.LR > 0 {
		s.Optimizer.LR = o.LR
	}
	if o.Loss != "" {
		s.Loss.Name = o.Loss
	}
	if o.Progress {
		s.Progress = true
	}
}

// Validate verifies that the settings describe a runnable
// experiment.
func (s *Settings) Validate() error {
	if s == nil {
		return errors.New("settings are nil")
	}
	switch s.Dataset {
	case DatasetMNIST:
		if err := validateConv(s.Model.Conv, aligdata.MNISTWidth,
			aligdata.MNISTWidth); err != nil {
			return err
		}
	case DatasetBlobs:
		b := s.Blobs
		if b.Classes < 2 || b.Dims <= 0 || b.Train <= 0 || b.Test < 0 {
			return fmt.Errorf("invalid blobs settings: %+v", b)
		}
		if len(s.Model.Conv) > 0 {
			return errors.New("conv layers need an image dataset")
		}
	default:
		return fmt.Errorf("unknown dataset: %q", s.Dataset)
	}
	if s.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (got %d)", s.Epochs)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", s.BatchSize)
	}
	if s.ValFraction < 0 || s.ValFraction >= 1 {
		return fmt.Errorf("val_fraction must be in [0, 1) (got %f)", s.ValFraction)
	}
	if s.Precision != 32 && s.Precision != 64 {
		return fmt.Errorf("precision must be 32 or 64 (got %d)", s.Precision)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", s.Workers)
	}
	for _, h := range s.Model.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden layer sizes must be > 0 (got %v)", s.Model.Hidden)
		}
	}
	if s.Model.KeepProb <= 0 || s.Model.KeepProb > 1 {
		return fmt.Errorf("keep_prob must be in (0, 1] (got %f)", s.Model.KeepProb)
	}
	switch s.Loss.Name {
	case LossSVM, LossCrossEntropy:
	default:
		return fmt.Errorf("unknown loss: %q", s.Loss.Name)
	}

	o := s.Optimizer
	switch o.Name {
	case OptALIG:
		if o.WeightDecay != 0 {
			return errors.New("alig is regularized with max_norm, not weight_decay")
		}
	case OptDFW, OptSGD, OptAdam, OptRMSProp:
		if o.LR <= 0 {
			return fmt.Errorf("%s needs lr > 0 (got %f)", o.Name, o.LR)
		}
		if o.MaxNorm != 0 {
			return fmt.Errorf("max_norm is only supported by alig")
		}
	default:
		return fmt.Errorf("unknown optimizer: %q", o.Name)
	}
	if o.LR < 0 || o.Momentum < 0 || o.Momentum >= 1 || o.WeightDecay < 0 || o.MaxNorm < 0 {
		return fmt.Errorf("invalid optimizer settings: %+v", o)
	}
	if len(o.Milestones) > 0 && (o.DecayFactor <= 0 || o.DecayFactor > 1) {
		return fmt.Errorf("decay_factor must be in (0, 1] (got %f)", o.DecayFactor)
	}
	return nil
}

func validateConv(convs []ConvSettings, width, height int) error {
	for i, c := range convs {
		if c.Filters <= 0 || c.Size <= 0 || c.Stride <= 0 || c.Pool < 0 {
			return fmt.Errorf("conv layer %d: invalid settings: %+v", i, c)
		}
		if c.Size > width || c.Size > height {
			return fmt.Errorf("conv layer %d: filter size %d exceeds %dx%d input",
				i, c.Size, width, height)
		}
		width = 1 + (width-c.Size)/c.Stride
		height = 1 + (height-c.Size)/c.Stride
		if c.Pool > 1 {
			width /= c.Pool
			height /= c.Pool
			if width == 0 || height == 0 {
				return fmt.Errorf("conv layer %d: pool span %d exceeds output", i, c.Pool)
			}
		}
	}
	return nil
}
