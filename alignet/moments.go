package alignet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// rowMomentRes is the mean (or negative mean, or mean
// square) of the rows of a row-major matrix.
type rowMomentRes struct {
	In     anydiff.Res
	Square bool
	Scaler anyvec.Numeric
	Out    anyvec.Vector
}

// negMeanRows computes the negative of the mean of the
// rows in a row-major matrix.
func negMeanRows(in anydiff.Res, cols int) anydiff.Res {
	return newRowMoment(in, cols, false, -1)
}

// meanSquare is like negMeanRows, but it squares the
// entries and does not negate the result.
func meanSquare(in anydiff.Res, cols int) anydiff.Res {
	return newRowMoment(in, cols, true, 1)
}

func newRowMoment(in anydiff.Res, cols int, square bool, sign float64) *rowMomentRes {
	if in.Output().Len()%cols != 0 {
		panic("column count must divide input size")
	}
	rows := float64(in.Output().Len() / cols)
	c := in.Output().Creator()
	entries := in.Output().Copy()
	if square {
		entries.Mul(in.Output())
	}
	out := anyvec.SumRows(entries, cols)
	out.Scale(c.MakeNumeric(sign / rows))

	// d(x^2)/dx = 2x, which is applied in Propagate.
	derivScale := sign / rows
	if square {
		derivScale *= 2
	}
	return &rowMomentRes{
		In:     in,
		Square: square,
		Scaler: c.MakeNumeric(derivScale),
		Out:    out,
	}
}

func (r *rowMomentRes) Output() anyvec.Vector {
	return r.Out
}

func (r *rowMomentRes) Vars() anydiff.VarSet {
	return r.In.Vars()
}

func (r *rowMomentRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	u.Scale(r.Scaler)
	downstream := r.Out.Creator().MakeVector(r.In.Output().Len())
	anyvec.AddRepeated(downstream, u)
	if r.Square {
		downstream.Mul(r.In.Output())
	}
	r.In.Propagate(downstream, g)
}
