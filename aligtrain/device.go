package aligtrain

import (
	"fmt"

	"github.com/cognoscentai/ali-g/aligdata"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Device is a place where batches can be moved before
// they are fed to a model.
type Device interface {
	Relocate(b *aligdata.Batch) (*aligdata.Batch, error)
}

// CreatorDevice moves batches to the vector
// representation of an anyvec.Creator.
//
// The model being trained should have been created with
// the same Creator.
type CreatorDevice struct {
	Creator anyvec.Creator
}

// Relocate copies the batch inputs into a vector created
// by c.Creator.
func (c *CreatorDevice) Relocate(b *aligdata.Batch) (*aligdata.Batch, error) {
	values, err := hostFloats(b.Inputs)
	if err != nil {
		return nil, essentials.AddCtx("relocate batch", err)
	}
	return &aligdata.Batch{
		Inputs: c.Creator.MakeVectorData(c.Creator.MakeNumericList(values)),
		Labels: b.Labels,
		Num:    b.Num,
	}, nil
}

func hostFloats(v anyvec.Vector) ([]float64, error) {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res, nil
	case []float64:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported numeric type: %T", data)
	}
}

func mustFloats(v anyvec.Vector) []float64 {
	res, err := hostFloats(v)
	if err != nil {
		panic(err)
	}
	return res
}
