// Package aligmetric implements the running metrics that
// the epoch driver accumulates and logs.
//
// Every metric is reset at the start of a pass, updated
// once per batch, and logged under an epoch timestamp
// once the pass is over.
package aligmetric

import (
	"fmt"
	"time"
)

// A Metric is a named accumulator.
type Metric interface {
	Name() string

	// Reset clears the accumulated state.
	Reset()

	// Value returns the current value.
	// If nothing was recorded since the last Reset, the
	// value is 0.
	Value() float64

	// HasData reports whether anything was recorded since
	// the last Reset.
	HasData() bool

	// Log reports the current value with the given time
	// stamp (typically an epoch index).
	// It does nothing if there is no data.
	Log(time int)
}

// Average is a weighted running average.
type Average struct {
	MetricName string
	Recorder   Recorder

	sum    float64
	weight float64
	count  int
}

// NewAverage creates an Average that logs to r.
// The Recorder may be nil.
func NewAverage(name string, r Recorder) *Average {
	return &Average{MetricName: name, Recorder: r}
}

// Name returns the metric name.
func (a *Average) Name() string {
	return a.MetricName
}

// Reset clears the average.
func (a *Average) Reset() {
	a.sum = 0
	a.weight = 0
	a.count = 0
}

// Update folds an observation into the average.
//
// The weight must be non-negative; a zero weight counts
// as an observation but does not move the value.
func (a *Average) Update(value, weight float64) {
	if weight < 0 {
		panic(fmt.Sprintf("metric %s: negative weight %f", a.MetricName, weight))
	}
	a.sum += value * weight
	a.weight += weight
	a.count++
}

// Value returns the weighted mean of the observations, or
// 0 if the total weight is 0.
func (a *Average) Value() float64 {
	if a.weight == 0 {
		return 0
	}
	return a.sum / a.weight
}

// HasData reports whether any observation has positive
// weight.
func (a *Average) HasData() bool {
	return a.weight > 0
}

// Count returns the number of Update calls since the
// last Reset.
func (a *Average) Count() int {
	return a.count
}

// Log sends the value to the Recorder.
func (a *Average) Log(time int) {
	logMetric(a, a.Recorder, time)
}

// Max tracks the largest value seen.
type Max struct {
	MetricName string
	Recorder   Recorder

	value   float64
	hasData bool
}

// NewMax creates a Max that logs to r.
func NewMax(name string, r Recorder) *Max {
	return &Max{MetricName: name, Recorder: r}
}

// Name returns the metric name.
func (m *Max) Name() string {
	return m.MetricName
}

// Reset forgets the maximum.
func (m *Max) Reset() {
	m.value = 0
	m.hasData = false
}

// Update records a value.
func (m *Max) Update(value float64) {
	if !m.hasData || value > m.value {
		m.value = value
	}
	m.hasData = true
}

// Value returns the maximum, or 0 if nothing was
// recorded.
func (m *Max) Value() float64 {
	return m.value
}

// HasData reports whether Update has been called.
func (m *Max) HasData() bool {
	return m.hasData
}

// Log sends the maximum to the Recorder.
func (m *Max) Log(time int) {
	logMetric(m, m.Recorder, time)
}

// Timer measures the wall time elapsed since its last
// Reset.
type Timer struct {
	MetricName string
	Recorder   Recorder

	// Now returns the current time.
	// If it is nil, time.Now is used.
	//
	// A Timer built by hand must be Reset after Now is set.
	Now func() time.Time

	start   time.Time
	elapsed float64
	hasData bool
}

// NewTimer creates a started Timer that logs to r.
//
// The clock is read with now, or with time.Now if now is
// nil.
func NewTimer(name string, r Recorder, now func() time.Time) *Timer {
	t := &Timer{MetricName: name, Recorder: r, Now: now}
	t.Reset()
	return t
}

// Name returns the metric name.
func (t *Timer) Name() string {
	return t.MetricName
}

// Reset restarts the clock.
func (t *Timer) Reset() {
	t.start = t.now()
	t.elapsed = 0
	t.hasData = false
}

// Update records the number of seconds since the last
// Reset.
func (t *Timer) Update() {
	t.elapsed = t.now().Sub(t.start).Seconds()
	t.hasData = true
}

// Value returns the last recorded duration in seconds.
func (t *Timer) Value() float64 {
	return t.elapsed
}

// HasData reports whether Update has been called.
func (t *Timer) HasData() bool {
	return t.hasData
}

// Log sends the duration to the Recorder.
func (t *Timer) Log(time int) {
	logMetric(t, t.Recorder, time)
}

func (t *Timer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func logMetric(m Metric, r Recorder, time int) {
	if r == nil || !m.HasData() {
		return
	}
	r.Record(m.Name(), time, m.Value())
}
