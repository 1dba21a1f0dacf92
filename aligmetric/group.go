package aligmetric

import (
	"io"
	"os"
)

// Standard metric names within a Group.
const (
	NameAcc        = "acc"
	NameAcc5       = "acc5"
	NameLoss       = "loss"
	NameObj        = "obj"
	NameReg        = "reg"
	NameWeightNorm = "weight_norm"
	NameStepSize   = "step_size"
	NameStepSizeU  = "step_size_u"
	NameTimer      = "timer"
	NameMaxVal     = "max_val"
)

// A Group bundles the metrics of one data split.
//
// Evaluation groups only carry the accuracy metrics and
// the timer; the other fields are nil.
type Group struct {
	Name string

	Acc        *Average
	Acc5       *Average
	Loss       *Average
	Obj        *Average
	Reg        *Average
	WeightNorm *Average
	StepSize   *Average
	StepSizeU  *Average
	Timer      *Timer
}

// NewTrainGroup creates a group with every metric needed
// for a training pass.
//
// Metric names are prefixed with the group name, as in
// "train_acc".
func NewTrainGroup(name string, r Recorder) *Group {
	g := NewEvalGroup(name, r)
	g.Loss = NewAverage(name+"_"+NameLoss, r)
	g.Obj = NewAverage(name+"_"+NameObj, r)
	g.Reg = NewAverage(name+"_"+NameReg, r)
	g.WeightNorm = NewAverage(name+"_"+NameWeightNorm, r)
	g.StepSize = NewAverage(name+"_"+NameStepSize, r)
	g.StepSizeU = NewAverage(name+"_"+NameStepSizeU, r)
	return g
}

// NewEvalGroup creates a group with the metrics of an
// evaluation pass.
func NewEvalGroup(name string, r Recorder) *Group {
	return &Group{
		Name:  name,
		Acc:   NewAverage(name+"_"+NameAcc, r),
		Acc5:  NewAverage(name+"_"+NameAcc5, r),
		Timer: NewTimer(name+"_"+NameTimer, r, nil),
	}
}

// Metrics returns the non-nil metrics of the group.
func (g *Group) Metrics() []Metric {
	var res []Metric
	for _, a := range []*Average{g.Acc, g.Acc5, g.Loss, g.Obj, g.Reg, g.WeightNorm,
		g.StepSize, g.StepSizeU} {
		if a != nil {
			res = append(res, a)
		}
	}
	if g.Timer != nil {
		res = append(res, g.Timer)
	}
	return res
}

// Reset resets every metric in the group.
func (g *Group) Reset() {
	for _, m := range g.Metrics() {
		m.Reset()
	}
}

// Log logs every metric in the group.
func (g *Group) Log(time int) {
	for _, m := range g.Metrics() {
		m.Log(time)
	}
}

// An Experiment is the metrics context of a run.
//
// It is created once per run and passed to every epoch.
type Experiment struct {
	// Epoch is the current epoch index.
	Epoch int

	Train *Group
	Val   *Group
	Test  *Group

	// MaxVal is the best validation accuracy so far.
	MaxVal *Max

	// Out receives the epoch summaries.
	// If it is nil, os.Stdout is used.
	Out io.Writer

	Recorder Recorder
}

// NewExperiment creates an Experiment whose metrics all
// log to r.
func NewExperiment(r Recorder) *Experiment {
	return &Experiment{
		Train:    NewTrainGroup("train", r),
		Val:      NewEvalGroup("val", r),
		Test:     NewEvalGroup("test", r),
		MaxVal:   NewMax(NameMaxVal, r),
		Recorder: r,
	}
}

// EvalGroup selects the group for an evaluation split.
// The "val" tag maps to e.Val; anything else maps to
// e.Test.
func (e *Experiment) EvalGroup(tag string) *Group {
	if tag == "val" {
		return e.Val
	}
	return e.Test
}

// Writer returns the summary writer.
func (e *Experiment) Writer() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}
