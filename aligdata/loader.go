package aligdata

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Standard loader tags.
const (
	TagTrain = "train"
	TagVal   = "val"
	TagTest  = "test"
)

// A Loader splits a SampleList into consecutive
// mini-batches.
//
// The final batch is smaller than BatchSize when the
// sample count is not divisible by it.
type Loader struct {
	Samples   SampleList
	BatchSize int

	// Name is the split tag, such as TagTrain.
	Name string

	// Rand, if non-nil, is used to shuffle the samples
	// every time Restart is called.
	Rand *rand.Rand

	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0, GOMAXPROCS is used.
	MaxGos int
}

// Tag returns the split tag.
func (l *Loader) Tag() string {
	return l.Name
}

// Len returns the number of batches.
func (l *Loader) Len() int {
	if l.BatchSize <= 0 {
		panic("batch size must be positive")
	}
	return (l.Samples.Len() + l.BatchSize - 1) / l.BatchSize
}

// Restart prepares the loader for a new pass over the
// data, shuffling it if l.Rand is set.
func (l *Loader) Restart() {
	if l.Rand != nil {
		Shuffle(l.Samples, l.Rand)
	}
}

// Batch fetches the batch at the given index.
func (l *Loader) Batch(idx int) (*Batch, error) {
	if idx < 0 || idx >= l.Len() {
		return nil, errors.New("fetch batch: index out of range")
	}
	start := idx * l.BatchSize
	end := start + l.BatchSize
	if end > l.Samples.Len() {
		end = l.Samples.Len()
	}
	return l.fetch(l.Samples.Slice(start, end))
}

func (l *Loader) fetch(s SampleList) (*Batch, error) {
	ins := make([]anyvec.Vector, s.Len())
	labels := make([]int, s.Len())

	idxChan := make(chan int, s.Len())
	for i := 0; i < s.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := l.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := s.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				ins[i] = sample.Input
				labels[i] = sample.Label
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return &Batch{
		Inputs: ins[0].Creator().Concat(ins...),
		Labels: labels,
		Num:    s.Len(),
	}, nil
}
