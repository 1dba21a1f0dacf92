package aligmetric

import (
	"fmt"
	"io"
	"sort"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var h History
	serializer.RegisterTypedDeserializer(h.SerializerType(), DeserializeHistory)
	var s Series
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeSeries)
	var n seriesName
	serializer.RegisterTypedDeserializer(n.SerializerType(), deserializeSeriesName)
}

// A Recorder receives logged metric values.
type Recorder interface {
	Record(name string, time int, value float64)
}

// MultiRecorder forwards every value to each of its
// Recorders in order.
type MultiRecorder []Recorder

// Record forwards the value.
func (m MultiRecorder) Record(name string, time int, value float64) {
	for _, r := range m {
		r.Record(name, time, value)
	}
}

// LineRecorder writes one tab-separated line per value.
type LineRecorder struct {
	W io.Writer
}

// Record writes the value.
func (l *LineRecorder) Record(name string, time int, value float64) {
	fmt.Fprintf(l.W, "%s\t%d\t%g\n", name, time, value)
}

// A Point is one logged value.
type Point struct {
	Time  int
	Value float64
}

// A Series is the sequence of values logged for a single
// metric.
type Series struct {
	Name   string
	Points []Point
}

// DeserializeSeries deserializes a Series.
func DeserializeSeries(d []byte) (*Series, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Series", err)
	}
	if len(slice)%2 != 1 {
		return nil, fmt.Errorf("deserialize Series: bad element count %d", len(slice))
	}
	name, ok := slice[0].(seriesName)
	if !ok {
		return nil, fmt.Errorf("deserialize Series: bad name type %T", slice[0])
	}
	res := &Series{Name: string(name)}
	for i := 1; i < len(slice); i += 2 {
		t, ok1 := slice[i].(serializer.Int)
		v, ok2 := slice[i+1].(serializer.Float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("deserialize Series: bad point types %T, %T",
				slice[i], slice[i+1])
		}
		res.Points = append(res.Points, Point{Time: int(t), Value: float64(v)})
	}
	return res, nil
}

// Last returns the most recent point.
// The second return value is false for an empty series.
func (s *Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// SerializerType returns the unique ID used to serialize
// a Series with the serializer package.
func (s *Series) SerializerType() string {
	return "github.com/cognoscentai/ali-g/aligmetric.Series"
}

// Serialize serializes the series.
func (s *Series) Serialize() ([]byte, error) {
	slice := []serializer.Serializer{seriesName(s.Name)}
	for _, p := range s.Points {
		slice = append(slice, serializer.Int(p.Time), serializer.Float64(p.Value))
	}
	return serializer.SerializeSlice(slice)
}

// History is a Recorder which keeps every logged value in
// memory.
type History struct {
	series map[string]*Series
}

// DeserializeHistory deserializes a History.
func DeserializeHistory(d []byte) (*History, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize History", err)
	}
	res := &History{}
	for _, x := range slice {
		s, ok := x.(*Series)
		if !ok {
			return nil, fmt.Errorf("deserialize History: not a Series: %T", x)
		}
		res.add(s)
	}
	return res, nil
}

// Record appends the value to the named series.
func (h *History) Record(name string, time int, value float64) {
	s := h.Series(name)
	if s == nil {
		s = &Series{Name: name}
		h.add(s)
	}
	s.Points = append(s.Points, Point{Time: time, Value: value})
}

// Series returns the named series, or nil if nothing was
// recorded under the name.
func (h *History) Series(name string) *Series {
	return h.series[name]
}

// Names returns the sorted series names.
func (h *History) Names() []string {
	var res []string
	for name := range h.series {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// SerializerType returns the unique ID used to serialize
// a History with the serializer package.
func (h *History) SerializerType() string {
	return "github.com/cognoscentai/ali-g/aligmetric.History"
}

// Serialize serializes every series, sorted by name.
func (h *History) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, name := range h.Names() {
		slice = append(slice, h.series[name])
	}
	return serializer.SerializeSlice(slice)
}

func (h *History) add(s *Series) {
	if h.series == nil {
		h.series = map[string]*Series{}
	}
	h.series[s.Name] = s
}

type seriesName string

func deserializeSeriesName(d []byte) (seriesName, error) {
	return seriesName(d), nil
}

func (s seriesName) SerializerType() string {
	return "github.com/cognoscentai/ali-g/aligmetric.seriesName"
}

func (s seriesName) Serialize() ([]byte, error) {
	return []byte(s), nil
}
