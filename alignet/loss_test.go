package alignet

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
)

var testScores = []float32{
	1, 2.5, 2,
	-2, -5, -3,
}

var testLabels = []int{1, 2}

func TestSVM(t *testing.T) {
	t.Run("Hard", func(t *testing.T) {
		testLoss(t, &SVM{Alpha: 1}, false, 1.25)
	})
	t.Run("Smooth", func(t *testing.T) {
		testLoss(t, &SVM{Alpha: 1}, true, 1.675057845)
	})
	t.Run("NoMargin", func(t *testing.T) {
		// The first row is correct, the second one is off
		// by one.
		testLoss(t, &SVM{}, false, 0.5)
	})
}

func TestCrossEntropy(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		testLoss(t, &CrossEntropy{}, false, 0.976571411)
	})
	t.Run("LabelSmoothing", func(t *testing.T) {
		testLoss(t, &CrossEntropy{Epsilon: 0.1}, true, 1.026571411)
	})
}

func TestLossSmoothingIsPerCall(t *testing.T) {
	loss := &SVM{Alpha: 1}
	scores := anydiff.NewConst(anyvec32.MakeVectorData(testScores))
	smooth := floats(loss.Loss(scores, testLabels, true).Output())[0]
	hard := floats(loss.Loss(scores, testLabels, false).Output())[0]
	if math.Abs(smooth-hard) < 1e-3 {
		t.Fatal("smoothing had no effect")
	}
	if math.Abs(hard-1.25) > 1e-3 {
		t.Errorf("smoothing leaked into a later call: got %f", hard)
	}
}

func TestLossProp(t *testing.T) {
	losses := map[string]Loss{
		"SVM":          &SVM{Alpha: 1},
		"CrossEntropy": &CrossEntropy{},
	}
	for name, loss := range losses {
		for _, smooth := range []bool{false, true} {
			v := anydiff.NewVar(anyvec32.MakeVectorData([]float32{
				1.5, 2, 2.25, 3, 3.5, 4, 4.6, 5,
			}))
			labels := []int{1, 3}
			checker := &anydifftest.ResChecker{
				F: func() anydiff.Res {
					return loss.Loss(v, labels, smooth)
				},
				V: []*anydiff.Var{v},
			}
			t.Run(name, checker.FullCheck)
		}
	}
}

func testLoss(t *testing.T, l Loss, smooth bool, expected float64) {
	scores := anydiff.NewConst(anyvec32.MakeVectorData(testScores))
	res := l.Loss(scores, testLabels, smooth).Output()
	if res.Len() != 1 {
		t.Fatalf("expected 1 component but got %d", res.Len())
	}
	actual := floats(res)[0]
	if math.IsNaN(actual) || math.Abs(actual-expected) > 1e-3 {
		t.Errorf("expected %f but got %f", expected, actual)
	}
}
