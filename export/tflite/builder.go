package tflite

import "encoding/binary"
import "math"

import flatbuffers "github.com/google/flatbuffers/go"

type quantization struct {
	scale []float32
	zero  []int64
	dim   int32
}

type tensor struct {
	name   string
	shape  []int32
	typ    TensorType
	buffer uint32
	quant  *quantization
}

type operator struct {
	opcode      uint32
	inputs      []int32
	outputs     []int32
	optionsType byte
	options     func(b *flatbuffers.Builder) flatbuffers.UOffsetT
}

// graph is a single subgraph model being assembled
type graph struct {
	tensors []tensor
	buffers [][]byte
	ops     []operator
	codes   []int32
	inputs  []int32
	outputs []int32
}

func newGraph() *graph {
	// buffer 0 is the empty buffer of every activation tensor
	return &graph{buffers: [][]byte{nil}}
}

// addTensor appends a tensor and returns its index
func (g *graph) addTensor(t tensor) int32 {
	g.tensors = append(g.tensors, t)
	return int32(len(g.tensors) - 1)
}

// addConst appends a tensor backed by data
func (g *graph) addConst(t tensor, data []byte) int32 {
	g.buffers = append(g.buffers, data)
	t.buffer = uint32(len(g.buffers) - 1)
	return g.addTensor(t)
}

func (g *graph) opcode(code int32) uint32 {
	for i, c := range g.codes {
		if c == code {
			return uint32(i)
		}
	}
	g.codes = append(g.codes, code)
	return uint32(len(g.codes) - 1)
}

func (g *graph) addOp(code int32, inputs, outputs []int32, optionsType byte, options func(b *flatbuffers.Builder) flatbuffers.UOffsetT) {
	g.ops = append(g.ops, operator{
		opcode:      g.opcode(code),
		inputs:      inputs,
		outputs:     outputs,
		optionsType: optionsType,
		options:     options,
	})
}

func int8Bytes(q []int8) []byte {
	out := make([]byte, len(q))
	for i, v := range q {
		out[i] = byte(v)
	}
	return out
}

func int32Bytes(q []int32) []byte {
	out := make([]byte, 4*len(q))
	for i, v := range q {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func int32Vector(b *flatbuffers.Builder, v []int32) flatbuffers.UOffsetT {
	b.StartVector(4, len(v), 4)
	for i := len(v) - 1; i >= 0; i-- {
		b.PrependInt32(v[i])
	}
	return b.EndVector(len(v))
}

func offsetVector(b *flatbuffers.Builder, v []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(v), 4)
	for i := len(v) - 1; i >= 0; i-- {
		b.PrependUOffsetT(v[i])
	}
	return b.EndVector(len(v))
}

func (q *quantization) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartVector(4, len(q.scale), 4)
	for i := len(q.scale) - 1; i >= 0; i-- {
		b.PrependFloat32(q.scale[i])
	}
	scale := b.EndVector(len(q.scale))
	b.StartVector(8, len(q.zero), 8)
	for i := len(q.zero) - 1; i >= 0; i-- {
		b.PrependInt64(q.zero[i])
	}
	zero := b.EndVector(len(q.zero))

	b.StartObject(7)
	b.PrependUOffsetTSlot(2, scale, 0)
	b.PrependUOffsetTSlot(3, zero, 0)
	b.PrependInt32Slot(6, q.dim, 0)
	return b.EndObject()
}

func (t *tensor) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	shape := int32Vector(b, t.shape)
	name := b.CreateString(t.name)
	var quant flatbuffers.UOffsetT
	if t.quant != nil {
		quant = t.quant.build(b)
	}
	b.StartObject(5)
	b.PrependUOffsetTSlot(0, shape, 0)
	b.PrependInt8Slot(1, int8(t.typ), 0)
	b.PrependUint32Slot(2, t.buffer, 0)
	b.PrependUOffsetTSlot(3, name, 0)
	if quant != 0 {
		b.PrependUOffsetTSlot(4, quant, 0)
	}
	return b.EndObject()
}

func (o *operator) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	inputs := int32Vector(b, o.inputs)
	outputs := int32Vector(b, o.outputs)
	var options flatbuffers.UOffsetT
	if o.options != nil {
		options = o.options(b)
	}
	b.StartObject(5)
	b.PrependUint32Slot(0, o.opcode, 0)
	b.PrependUOffsetTSlot(1, inputs, 0)
	b.PrependUOffsetTSlot(2, outputs, 0)
	if options != 0 {
		b.PrependByteSlot(3, o.optionsType, optionsNone)
		b.PrependUOffsetTSlot(4, options, 0)
	}
	return b.EndObject()
}

func buildBuffer(b *flatbuffers.Builder, data []byte) flatbuffers.UOffsetT {
	var vec flatbuffers.UOffsetT
	if len(data) > 0 {
		b.StartVector(1, len(data), 16)
		for i := len(data) - 1; i >= 0; i-- {
			b.PrependByte(data[i])
		}
		vec = b.EndVector(len(data))
	}
	b.StartObject(1)
	if vec != 0 {
		b.PrependUOffsetTSlot(0, vec, 0)
	}
	return b.EndObject()
}

// serialize writes the model flatbuffer
func (g *graph) serialize(description string) []byte {
	size := 1024
	for _, d := range g.buffers {
		size += len(d) + 32
	}
	b := flatbuffers.NewBuilder(size)

	buffers := make([]flatbuffers.UOffsetT, len(g.buffers))
	for i, d := range g.buffers {
		buffers[i] = buildBuffer(b, d)
	}
	buffersVec := offsetVector(b, buffers)

	tensors := make([]flatbuffers.UOffsetT, len(g.tensors))
	for i := range g.tensors {
		tensors[i] = g.tensors[i].build(b)
	}
	tensorsVec := offsetVector(b, tensors)

	ops := make([]flatbuffers.UOffsetT, len(g.ops))
	for i := range g.ops {
		ops[i] = g.ops[i].build(b)
	}
	opsVec := offsetVector(b, ops)

	inputs := int32Vector(b, g.inputs)
	outputs := int32Vector(b, g.outputs)
	name := b.CreateString("main")
	b.StartObject(5)
	b.PrependUOffsetTSlot(0, tensorsVec, 0)
	b.PrependUOffsetTSlot(1, inputs, 0)
	b.PrependUOffsetTSlot(2, outputs, 0)
	b.PrependUOffsetTSlot(3, opsVec, 0)
	b.PrependUOffsetTSlot(4, name, 0)
	subgraph := b.EndObject()
	subgraphs := offsetVector(b, []flatbuffers.UOffsetT{subgraph})

	codes := make([]flatbuffers.UOffsetT, len(g.codes))
	for i, c := range g.codes {
		b.StartObject(4)
		b.PrependInt8Slot(0, int8(min(c, math.MaxInt8)), 0)
		b.PrependInt32Slot(2, opVersions[c], 1)
		b.PrependInt32Slot(3, c, 0)
		codes[i] = b.EndObject()
	}
	codesVec := offsetVector(b, codes)

	desc := b.CreateString(description)
	b.StartObject(5)
	b.PrependUint32Slot(0, schemaVersion, 0)
	b.PrependUOffsetTSlot(1, codesVec, 0)
	b.PrependUOffsetTSlot(2, subgraphs, 0)
	b.PrependUOffsetTSlot(3, desc, 0)
	b.PrependUOffsetTSlot(4, buffersVec, 0)
	model := b.EndObject()
	b.FinishWithFileIdentifier(model, []byte(fileIdentifier))
	return b.FinishedBytes()
}

func conv2DOptions(fused byte) func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
		b.StartObject(6)
		b.PrependByteSlot(0, paddingSame, 0)
		b.PrependInt32Slot(1, 1, 0)
		b.PrependInt32Slot(2, 1, 0)
		b.PrependByteSlot(3, fused, 0)
		b.PrependInt32Slot(4, 1, 1)
		b.PrependInt32Slot(5, 1, 1)
		return b.EndObject()
	}
}

func pool2DOptions(size int32) func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
		b.StartObject(6)
		b.PrependByteSlot(0, paddingValid, 0)
		b.PrependInt32Slot(1, size, 0)
		b.PrependInt32Slot(2, size, 0)
		b.PrependInt32Slot(3, size, 0)
		b.PrependInt32Slot(4, size, 0)
		b.PrependByteSlot(5, activationNone, 0)
		return b.EndObject()
	}
}

func fullyConnectedOptions(fused byte) func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
		b.StartObject(4)
		b.PrependByteSlot(0, fused, 0)
		return b.EndObject()
	}
}

func reshapeOptions(shape []int32) func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
		vec := int32Vector(b, shape)
		b.StartObject(1)
		b.PrependUOffsetTSlot(0, vec, 0)
		return b.EndObject()
	}
}
