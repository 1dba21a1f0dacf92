package alignet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m MaxPool
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMaxPool)
}

// MaxPool is a max-pooling layer over non-overlapping
// SpanX by SpanY windows.
//
// Tensors are row-major depth-minor, like for Conv.
// Input values in an incomplete window at the right or
// bottom edge are dropped.
type MaxPool struct {
	SpanX int
	SpanY int

	InputWidth  int
	InputHeight int
	InputDepth  int

	windows anyvec.Mapper
}

// DeserializeMaxPool deserializes a MaxPool.
func DeserializeMaxPool(d []byte) (*MaxPool, error) {
	var sX, sY, iW, iH, iD serializer.Int
	if err := serializer.DeserializeAny(d, &sX, &sY, &iW, &iH, &iD); err != nil {
		return nil, essentials.AddCtx("deserialize MaxPool", err)
	}
	return &MaxPool{
		SpanX:       int(sX),
		SpanY:       int(sY),
		InputWidth:  int(iW),
		InputHeight: int(iH),
		InputDepth:  int(iD),
	}, nil
}

// OutputWidth returns the width of the output tensor.
func (m *MaxPool) OutputWidth() int {
	return slideCount(m.InputWidth, m.SpanX, m.SpanX)
}

// OutputHeight returns the height of the output tensor.
func (m *MaxPool) OutputHeight() int {
	return slideCount(m.InputHeight, m.SpanY, m.SpanY)
}

// OutputDepth returns the depth of the output tensor.
func (m *MaxPool) OutputDepth() int {
	return m.InputDepth
}

// Apply applies the layer to a batch of images.
//
// This is not thread-safe.
func (m *MaxPool) Apply(in anydiff.Res, batch int) anydiff.Res {
	imgSize := m.InputWidth * m.InputHeight * m.InputDepth
	if in.Output().Len() != batch*imgSize {
		panic(fmt.Sprintf("input length should be %d, but got %d", batch*imgSize,
			in.Output().Len()))
	}
	cr := in.Output().Creator()
	windows := m.mapper(cr)
	temp := cr.MakeVector(windows.OutSize())

	results := make([]anyvec.Vector, batch)
	maxMaps := make([]anyvec.Mapper, batch)
	for i := 0; i < batch; i++ {
		windows.Map(in.Output().Slice(imgSize*i, imgSize*(i+1)), temp)
		maxMap := anyvec.MapMax(temp, m.SpanX*m.SpanY)
		results[i] = cr.MakeVector(maxMap.OutSize())
		maxMap.Map(temp, results[i])
		maxMaps[i] = maxMap
	}

	return &maxPoolRes{
		Windows: windows,
		In:      in,
		Out:     cr.Concat(results...),
		Maps:    maxMaps,
	}
}

// SerializerType returns the unique ID used to serialize
// a MaxPool with the serializer package.
func (m *MaxPool) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.MaxPool"
}

// Serialize serializes the layer.
func (m *MaxPool) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(m.SpanX),
		serializer.Int(m.SpanY),
		serializer.Int(m.InputWidth),
		serializer.Int(m.InputHeight),
		serializer.Int(m.InputDepth),
	)
}

// mapper gathers every window into a contiguous run of
// SpanX*SpanY values, one run per output component.
func (m *MaxPool) mapper(cr anyvec.Creator) anyvec.Mapper {
	if m.windows != nil && m.windows.Creator() == cr {
		return m.windows
	}
	var mapping []int
	for y := 0; y+m.SpanY <= m.InputHeight; y += m.SpanY {
		for x := 0; x+m.SpanX <= m.InputWidth; x += m.SpanX {
			for z := 0; z < m.InputDepth; z++ {
				for subY := 0; subY < m.SpanY; subY++ {
					rowIdx := (y + subY) * m.InputWidth * m.InputDepth
					for subX := 0; subX < m.SpanX; subX++ {
						mapping = append(mapping, rowIdx+(x+subX)*m.InputDepth+z)
					}
				}
			}
		}
	}
	m.windows = cr.MakeMapper(m.InputWidth*m.InputHeight*m.InputDepth, mapping)
	return m.windows
}

type maxPoolRes struct {
	Windows anyvec.Mapper
	In      anydiff.Res
	Out     anyvec.Vector
	Maps    []anyvec.Mapper
}

func (m *maxPoolRes) Output() anyvec.Vector {
	return m.Out
}

func (m *maxPoolRes) Vars() anydiff.VarSet {
	return m.In.Vars()
}

func (m *maxPoolRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	cr := u.Creator()
	outSize := u.Len() / len(m.Maps)
	pieces := make([]anyvec.Vector, len(m.Maps))
	for i, maxMap := range m.Maps {
		windowUp := cr.MakeVector(maxMap.InSize())
		maxMap.MapTranspose(u.Slice(outSize*i, outSize*(i+1)), windowUp)
		pieces[i] = cr.MakeVector(m.Windows.InSize())
		m.Windows.MapTranspose(windowUp, pieces[i])
	}
	m.In.Propagate(cr.Concat(pieces...), g)
}
