package alignet

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestMLPLayout(t *testing.T) {
	net := NewMLP(anyvec32.DefaultCreator{}, 10, []int{8, 6}, 4, 0.5, true)
	if len(net) != 2*4+1 {
		t.Fatalf("unexpected layer count: %d", len(net))
	}
	// Two parameters for every FC and BatchNorm.
	if n := len(net.Parameters()); n != 2*5 {
		t.Errorf("unexpected parameter count: %d", n)
	}
	out := net.Apply(anydiff.NewConst(anyvec32.DefaultCreator{}.MakeVector(30)), 3)
	if out.Output().Len() != 12 {
		t.Errorf("unexpected output size: %d", out.Output().Len())
	}
}

func TestNetSetTraining(t *testing.T) {
	net := NewMLP(anyvec32.DefaultCreator{}, 3, []int{3}, 2, 0.5, true)
	net.SetTraining(true)
	for _, l := range net {
		switch l := l.(type) {
		case *Dropout:
			if !l.Training {
				t.Error("dropout not in training mode")
			}
		case *BatchNorm:
			if !l.Training {
				t.Error("batch norm not in training mode")
			}
		}
	}
	net.SetTraining(false)
	for _, l := range net {
		switch l := l.(type) {
		case *Dropout:
			if l.Training {
				t.Error("dropout still in training mode")
			}
		case *BatchNorm:
			if l.Training {
				t.Error("batch norm still in training mode")
			}
		}
	}
}

func TestDropoutEval(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	d := &Dropout{KeepProb: 0.25}
	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{4, -8})))
	actual := floats(d.Apply(in, 1).Output())
	if actual[0] != 1 || actual[1] != -2 {
		t.Errorf("unexpected output: %v", actual)
	}
}

func TestBatchNormModes(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	bn := NewBatchNorm(c, 2)
	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{
		1, 10,
		3, 20,
	})))

	bn.SetTraining(true)
	trainOut := floats(bn.Apply(in, 2).Output())
	for col := 0; col < 2; col++ {
		if mean := trainOut[col] + trainOut[2+col]; math.Abs(mean) > 1e-8 {
			t.Errorf("column %d not centered: %v", col, trainOut)
		}
	}
	runMean := floats(bn.RunningMean)
	if math.Abs(runMean[0]-0.2) > 1e-8 || math.Abs(runMean[1]-1.5) > 1e-8 {
		t.Errorf("unexpected running mean: %v", runMean)
	}
	runVar := floats(bn.RunningVar)
	if math.Abs(runVar[0]-(0.9+0.1*1)) > 1e-8 || math.Abs(runVar[1]-(0.9+0.1*25)) > 1e-8 {
		t.Errorf("unexpected running variance: %v", runVar)
	}

	bn.SetTraining(false)
	evalOut := floats(bn.Apply(in, 2).Output())
	expected := (1 - runMean[0]) / math.Sqrt(runVar[0]+defaultBNStabilizer)
	if math.Abs(evalOut[0]-expected) > 1e-8 {
		t.Errorf("expected %f but got %f", expected, evalOut[0])
	}
	if floats(bn.RunningMean)[0] != runMean[0] {
		t.Error("evaluation changed the running statistics")
	}
}

func TestBatchNormProp(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	bn := NewBatchNorm(c, 2)
	bn.Training = true
	in := anydiff.NewVar(anyvec32.MakeVectorData([]float32{1, -2, 0.5, 3, 2, 1}))
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return bn.Apply(in, 3)
		},
		V: append([]*anydiff.Var{in}, bn.Parameters()...),
	}
	checker.FullCheck(t)
}
