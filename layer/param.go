package layer

import "math"
import "math/rand"

// Param is a named parameter block. Non trainable parameters (moving
// statistics) are saved and restored with the model but skipped by optimizers.
type Param struct {
	Name      string
	Shape     Shape
	Value     []float32
	Grad      []float32
	Trainable bool
}

// NewParam allocates a trainable parameter filled with zeros.
func NewParam(name string, shape ...int) *Param {
	s := Shape(shape)
	return &Param{
		Name:      name,
		Shape:     s,
		Value:     make([]float32, s.Size()),
		Grad:      make([]float32, s.Size()),
		Trainable: true,
	}
}

// NewState allocates a non trainable parameter filled with v.
func NewState(name string, v float32, shape ...int) *Param {
	s := Shape(shape)
	p := &Param{
		Name:  name,
		Shape: s,
		Value: make([]float32, s.Size()),
	}
	for i := range p.Value {
		p.Value[i] = v
	}
	return p
}

// GlorotUniform fills the parameter from U(-l, l), l = sqrt(6 / (fanIn + fanOut)).
func (p *Param) GlorotUniform(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.Value {
		p.Value[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}

// Fill sets every value to v.
func (p *Param) Fill(v float32) {
	for i := range p.Value {
		p.Value[i] = v
	}
}

// ZeroGrad clears the gradient.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}
