package alignet

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Conv
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConv)
}

// Conv is a convolutional layer.
//
// All input and output tensors are row-major depth-minor,
// so an MNIST image is a 28x28x1 tensor.
//
// Filters are stored as a row-major FilterCount by
// (FilterHeight*FilterWidth*InputDepth) matrix, with
// each row laid out like an input window.
type Conv struct {
	FilterCount  int
	FilterWidth  int
	FilterHeight int

	StrideX int
	StrideY int

	InputWidth  int
	InputHeight int
	InputDepth  int

	Filters *anydiff.Var
	Biases  *anydiff.Var

	im2row anyvec.Mapper
}

// DeserializeConv deserializes a Conv.
func DeserializeConv(d []byte) (*Conv, error) {
	var inW, inH, inD, fW, fH, sX, sY serializer.Int
	var f, b *anyvecsave.S
	err := serializer.DeserializeAny(d, &inW, &inH, &inD, &fW, &fH, &sX, &sY, &f, &b)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Conv", err)
	}
	return &Conv{
		FilterCount:  b.Vector.Len(),
		FilterWidth:  int(fW),
		FilterHeight: int(fH),
		StrideX:      int(sX),
		StrideY:      int(sY),
		InputWidth:   int(inW),
		InputHeight:  int(inH),
		InputDepth:   int(inD),
		Filters:      anydiff.NewVar(f.Vector),
		Biases:       anydiff.NewVar(b.Vector),
	}, nil
}

// NewConv creates a randomized Conv with square filters.
//
// Like NewFC, the filters are scaled for ReLU inputs.
func NewConv(c anyvec.Creator, width, height, depth, filters, size, stride int) *Conv {
	res := &Conv{
		FilterCount:  filters,
		FilterWidth:  size,
		FilterHeight: size,
		StrideX:      stride,
		StrideY:      stride,
		InputWidth:   width,
		InputHeight:  height,
		InputDepth:   depth,
	}
	fanIn := size * size * depth
	res.Filters = anydiff.NewVar(c.MakeVector(fanIn * filters))
	res.Biases = anydiff.NewVar(c.MakeVector(filters))
	anyvec.Rand(res.Filters.Vector, anyvec.Normal, nil)
	res.Filters.Vector.Scale(c.MakeNumeric(math.Sqrt(2 / float64(fanIn))))
	return res
}

// OutputWidth returns the width of the output tensor.
func (c *Conv) OutputWidth() int {
	return slideCount(c.InputWidth, c.FilterWidth, c.StrideX)
}

// OutputHeight returns the height of the output tensor.
func (c *Conv) OutputHeight() int {
	return slideCount(c.InputHeight, c.FilterHeight, c.StrideY)
}

// OutputDepth returns the depth of the output tensor.
func (c *Conv) OutputDepth() int {
	return c.FilterCount
}

// Apply applies the layer to a batch of images.
//
// This is not thread-safe.
func (c *Conv) Apply(in anydiff.Res, batch int) anydiff.Res {
	inSize := c.InputWidth * c.InputHeight * c.InputDepth
	if in.Output().Len() != batch*inSize {
		panic(fmt.Sprintf("input length should be %d, but got %d", batch*inSize,
			in.Output().Len()))
	}
	if c.OutputWidth() == 0 || c.OutputHeight() == 0 {
		panic("convolution has an empty output")
	}
	cr := in.Output().Creator()
	one := cr.MakeNumeric(1)
	zero := cr.MakeNumeric(0)

	filterMat := c.filterMatrix()
	outputs := make([]anyvec.Vector, batch)
	c.eachWindowMatrix(in.Output(), batch, func(i int, windows *anyvec.Matrix) {
		prod := &anyvec.Matrix{
			Data: cr.MakeVector(windows.Rows * c.FilterCount),
			Rows: windows.Rows,
			Cols: c.FilterCount,
		}
		prod.Product(false, true, one, windows, filterMat, zero)
		outputs[i] = prod.Data
	})
	out := cr.Concat(outputs...)
	anyvec.AddRepeated(out, c.Biases.Vector)

	ours := anydiff.VarSet{}
	ours.Add(c.Filters)
	ours.Add(c.Biases)
	return &convRes{
		Layer: c,
		N:     batch,
		In:    in,
		Out:   out,
		V:     anydiff.MergeVarSets(in.Vars(), ours),
	}
}

// Parameters returns the filters and the biases, in that
// order.
func (c *Conv) Parameters() []*anydiff.Var {
	return []*anydiff.Var{c.Filters, c.Biases}
}

// SerializerType returns the unique ID used to serialize
// a Conv with the serializer package.
func (c *Conv) SerializerType() string {
	return "github.com/cognoscentai/ali-g/alignet.Conv"
}

// Serialize serializes the layer.
func (c *Conv) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(c.InputWidth),
		serializer.Int(c.InputHeight),
		serializer.Int(c.InputDepth),
		serializer.Int(c.FilterWidth),
		serializer.Int(c.FilterHeight),
		serializer.Int(c.StrideX),
		serializer.Int(c.StrideY),
		&anyvecsave.S{Vector: c.Filters.Vector},
		&anyvecsave.S{Vector: c.Biases.Vector},
	)
}

func (c *Conv) filterMatrix() *anyvec.Matrix {
	return &anyvec.Matrix{
		Data: c.Filters.Vector,
		Rows: c.FilterCount,
		Cols: c.FilterWidth * c.FilterHeight * c.InputDepth,
	}
}

// eachWindowMatrix maps every image in the batch to a
// matrix with one row per filter position.
// The matrix is reused between calls to f.
func (c *Conv) eachWindowMatrix(in anyvec.Vector, batch int,
	f func(i int, windows *anyvec.Matrix)) {
	cr := in.Creator()
	mapper := c.mapper(cr)
	inSize := in.Len() / batch
	windows := &anyvec.Matrix{
		Data: cr.MakeVector(mapper.OutSize()),
		Rows: c.OutputWidth() * c.OutputHeight(),
		Cols: c.FilterWidth * c.FilterHeight * c.InputDepth,
	}
	for i := 0; i < batch; i++ {
		mapper.Map(in.Slice(inSize*i, inSize*(i+1)), windows.Data)
		f(i, windows)
	}
}

func (c *Conv) mapper(cr anyvec.Creator) anyvec.Mapper {
	if c.im2row != nil && c.im2row.Creator() == cr {
		return c.im2row
	}
	var mapping []int
	for y := 0; y+c.FilterHeight <= c.InputHeight; y += c.StrideY {
		for x := 0; x+c.FilterWidth <= c.InputWidth; x += c.StrideX {
			for subY := 0; subY < c.FilterHeight; subY++ {
				rowIdx := (y + subY) * c.InputWidth * c.InputDepth
				for subX := 0; subX < c.FilterWidth; subX++ {
					colIdx := rowIdx + (x+subX)*c.InputDepth
					for z := 0; z < c.InputDepth; z++ {
						mapping = append(mapping, colIdx+z)
					}
				}
			}
		}
	}
	c.im2row = cr.MakeMapper(c.InputWidth*c.InputHeight*c.InputDepth, mapping)
	return c.im2row
}

type convRes struct {
	Layer *Conv
	N     int
	In    anydiff.Res
	Out   anyvec.Vector
	V     anydiff.VarSet
}

func (c *convRes) Output() anyvec.Vector {
	return c.Out
}

func (c *convRes) Vars() anydiff.VarSet {
	return c.V
}

func (c *convRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	layer := c.Layer
	cr := u.Creator()
	one := cr.MakeNumeric(1)
	zero := cr.MakeNumeric(0)

	if biasGrad, ok := g[layer.Biases]; ok {
		biasGrad.Add(anyvec.SumRows(u, layer.FilterCount))
	}

	filterGrad, doFilters := g[layer.Filters]
	doIn := g.Intersects(c.In.Vars())
	if !doFilters && !doIn {
		return
	}

	filterMat := layer.filterMatrix()
	outSize := u.Len() / c.N
	inSize := c.In.Output().Len() / c.N
	mapper := layer.mapper(cr)
	inputUps := make([]anyvec.Vector, c.N)

	layer.eachWindowMatrix(c.In.Output(), c.N, func(i int, windows *anyvec.Matrix) {
		uMat := &anyvec.Matrix{
			Data: u.Slice(outSize*i, outSize*(i+1)),
			Rows: windows.Rows,
			Cols: layer.FilterCount,
		}
		if doFilters {
			fg := &anyvec.Matrix{
				Data: cr.MakeVector(filterGrad.Len()),
				Rows: filterMat.Rows,
				Cols: filterMat.Cols,
			}
			fg.Product(true, false, one, uMat, windows, zero)
			filterGrad.Add(fg.Data)
		}
		if doIn {
			windowGrad := &anyvec.Matrix{
				Data: cr.MakeVector(windows.Data.Len()),
				Rows: windows.Rows,
				Cols: windows.Cols,
			}
			windowGrad.Product(false, false, one, uMat, filterMat, zero)
			inUp := cr.MakeVector(inSize)
			mapper.MapTranspose(windowGrad.Data, inUp)
			inputUps[i] = inUp
		}
	})

	if doIn {
		c.In.Propagate(cr.Concat(inputUps...), g)
	}
}

func slideCount(size, window, stride int) int {
	if size < window {
		return 0
	}
	return 1 + (size-window)/stride
}
