package tflite

import "fmt"

import flatbuffers "github.com/google/flatbuffers/go"
import "github.com/pkg/errors"

// ErrMalformed is returned by Inspect for a buffer that is not a readable model
var ErrMalformed = errors.New("tflite: malformed model")

// TensorInfo describes one tensor of a model
type TensorInfo struct {
	Name      string
	Type      TensorType
	Shape     []int32
	Scale     []float32
	ZeroPoint []int64
	Buffer    uint32
}

// Operator is one node of the graph
type Operator struct {
	Code    int32
	Inputs  []int32
	Outputs []int32

	Padding byte
	StrideW int32
	StrideH int32
	FilterW int32
	FilterH int32
	Fused   byte
}

// Name of the builtin operator
func (o Operator) Name() string {
	if n, ok := opNames[o.Code]; ok {
		return n
	}
	return fmt.Sprintf("BUILTIN_%d", o.Code)
}

// Model is a decoded single subgraph model
type Model struct {
	Version     uint32
	Description string
	Tensors     []TensorInfo
	Operators   []Operator
	Inputs      []int32
	Outputs     []int32
	Size        int

	buffers [][]byte
}

// Input is the first graph input
func (m *Model) Input() TensorInfo {
	return m.Tensors[m.Inputs[0]]
}

// Output is the first graph output
func (m *Model) Output() TensorInfo {
	return m.Tensors[m.Outputs[0]]
}

// OperatorNames lists the operators in execution order
func (m *Model) OperatorNames() (o []string) {
	for _, op := range m.Operators {
		o = append(o, op.Name())
	}
	return
}

// Data is the constant data of tensor i, nil for activations
func (m *Model) Data(i int32) []byte {
	b := m.Tensors[i].Buffer
	if int(b) >= len(m.buffers) {
		return nil
	}
	return m.buffers[b]
}

type table struct {
	flatbuffers.Table
}

func (t table) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (t table) u32(slot int, d uint32) uint32 {
	if o := t.field(slot); o != 0 {
		return t.GetUint32(o + t.Pos)
	}
	return d
}

func (t table) i32(slot int, d int32) int32 {
	if o := t.field(slot); o != 0 {
		return t.GetInt32(o + t.Pos)
	}
	return d
}

func (t table) i8(slot int, d int8) int8 {
	if o := t.field(slot); o != 0 {
		return t.GetInt8(o + t.Pos)
	}
	return d
}

func (t table) u8(slot int, d byte) byte {
	if o := t.field(slot); o != 0 {
		return t.GetByte(o + t.Pos)
	}
	return d
}

func (t table) sub(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	return table{flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}}, true
}

func (t table) tables(slot int) (out []table) {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	start := t.Vector(o)
	for j := 0; j < t.VectorLen(o); j++ {
		x := start + flatbuffers.UOffsetT(j*4)
		out = append(out, table{flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(x)}})
	}
	return
}

func (t table) int32s(slot int) (out []int32) {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	start := t.Vector(o)
	for j := 0; j < t.VectorLen(o); j++ {
		out = append(out, t.GetInt32(start+flatbuffers.UOffsetT(j*4)))
	}
	return
}

func (t table) float32s(slot int) (out []float32) {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	start := t.Vector(o)
	for j := 0; j < t.VectorLen(o); j++ {
		out = append(out, t.GetFloat32(start+flatbuffers.UOffsetT(j*4)))
	}
	return
}

func (t table) int64s(slot int) (out []int64) {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	start := t.Vector(o)
	for j := 0; j < t.VectorLen(o); j++ {
		out = append(out, t.GetInt64(start+flatbuffers.UOffsetT(j*8)))
	}
	return
}

func (t table) bytes(slot int) []byte {
	if o := t.field(slot); o != 0 {
		return t.ByteVector(o + t.Pos)
	}
	return nil
}

// Inspect decodes a model written by Convert
func Inspect(buf []byte) (m *Model, err error) {
	if len(buf) < 8 || string(buf[4:8]) != fileIdentifier {
		return nil, errors.Wrap(ErrMalformed, "missing "+fileIdentifier+" identifier")
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, errors.Wrapf(ErrMalformed, "%v", r)
		}
	}()

	root := table{flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}}
	m = &Model{
		Version:     root.u32(0, 0),
		Description: string(root.bytes(3)),
		Size:        len(buf),
	}
	var codes []int32
	for _, c := range root.tables(1) {
		code := c.i32(3, 0)
		if dep := int32(c.i8(0, 0)); dep > code {
			code = dep
		}
		codes = append(codes, code)
	}
	for _, b := range root.tables(4) {
		m.buffers = append(m.buffers, b.bytes(0))
	}
	subgraphs := root.tables(2)
	if len(subgraphs) != 1 {
		return nil, errors.Wrapf(ErrMalformed, "%d subgraphs", len(subgraphs))
	}
	sg := subgraphs[0]
	m.Inputs, m.Outputs = sg.int32s(1), sg.int32s(2)
	for _, t := range sg.tables(0) {
		info := TensorInfo{
			Name:   string(t.bytes(3)),
			Type:   TensorType(t.i8(1, 0)),
			Shape:  t.int32s(0),
			Buffer: t.u32(2, 0),
		}
		if q, ok := t.sub(4); ok {
			info.Scale, info.ZeroPoint = q.float32s(2), q.int64s(3)
		}
		m.Tensors = append(m.Tensors, info)
	}
	for _, o := range sg.tables(3) {
		idx := o.u32(0, 0)
		if int(idx) >= len(codes) {
			return nil, errors.Wrapf(ErrMalformed, "opcode index %d", idx)
		}
		op := Operator{Code: codes[idx], Inputs: o.int32s(1), Outputs: o.int32s(2)}
		if opts, ok := o.sub(4); ok {
			switch o.u8(3, optionsNone) {
			case optionsConv2D:
				op.Padding, op.StrideW, op.StrideH, op.Fused = opts.u8(0, 0), opts.i32(1, 0), opts.i32(2, 0), opts.u8(3, 0)
			case optionsPool2D:
				op.Padding, op.StrideW, op.StrideH = opts.u8(0, 0), opts.i32(1, 0), opts.i32(2, 0)
				op.FilterW, op.FilterH, op.Fused = opts.i32(3, 0), opts.i32(4, 0), opts.u8(5, 0)
			case optionsFullyConnected:
				op.Fused = opts.u8(0, 0)
			}
		}
		m.Operators = append(m.Operators, op)
	}
	for _, list := range [][]int32{m.Inputs, m.Outputs} {
		if len(list) == 0 {
			return nil, errors.Wrap(ErrMalformed, "graph without inputs or outputs")
		}
		for _, i := range list {
			if int(i) >= len(m.Tensors) || i < 0 {
				return nil, errors.Wrapf(ErrMalformed, "tensor index %d", i)
			}
		}
	}
	return m, nil
}
