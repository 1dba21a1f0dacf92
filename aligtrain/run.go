package aligtrain

import (
	"context"
	"fmt"

	"github.com/cognoscentai/ali-g"
)

// Run trains for the given number of epochs, evaluating
// on s.Val and s.Test (when they are set) after every
// training epoch.
//
// Epochs are numbered from 0.
// The context is checked between epochs; if it is done,
// Run returns its error.
func Run(ctx context.Context, s *Session, epochs int) error {
	xp := s.Experiment
	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		xp.Epoch = epoch
		if es, ok := s.Optimizer.(alig.EpochSetter); ok {
			es.SetEpoch(epoch)
		}
		err := TrainEpoch(s.Model, s.Loss, s.Optimizer, s.Train, s.Config, xp)
		if err != nil {
			return err
		}
		for _, eval := range []BatchSource{s.Val, s.Test} {
			if eval == nil {
				continue
			}
			if err := EvalEpoch(s.Model, s.Optimizer, eval, s.Config, xp); err != nil {
				return err
			}
		}
	}
	if xp.MaxVal.HasData() {
		fmt.Fprintf(xp.Writer(), "\nBest validation accuracy: %.2f%%\n", xp.MaxVal.Value())
	}
	return nil
}
