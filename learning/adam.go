package learning

import "math"

import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"

// chunk is the number of values updated by one goroutine
const chunk = 1 << 14

type moments struct {
	m, v []float32
}

// Adam keeps per parameter moment estimates. Non trainable parameters are skipped.
type Adam struct {
	h     HyperParameters
	lr    float64
	t     int
	state map[*layer.Param]*moments
}

// NewAdam creates the optimizer
func NewAdam(h HyperParameters) *Adam {
	return &Adam{h: h, lr: h.LearningRate, state: make(map[*layer.Param]*moments)}
}

// LR is the current learning rate
func (a *Adam) LR() float64 {
	return a.lr
}

// SetLR changes the learning rate used by the next steps
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// Iterations is the number of steps taken
func (a *Adam) Iterations() int {
	return a.t
}

// Step applies one update to every trainable parameter from its Grad
func (a *Adam) Step(params ...*layer.Param) {
	a.t++
	b1, b2 := a.h.Beta1, a.h.Beta2
	alpha := a.lr * math.Sqrt(1-math.Pow(b2, float64(a.t))) / (1 - math.Pow(b1, float64(a.t)))
	eps := a.h.Epsilon
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		s := a.state[p]
		if s == nil {
			s = &moments{m: make([]float32, len(p.Value)), v: make([]float32, len(p.Value))}
			a.state[p] = s
		}
		chunks := (len(p.Value) + chunk - 1) / chunk
		parallel.Each(chunks, func(c int) {
			end := (c + 1) * chunk
			if end > len(p.Value) {
				end = len(p.Value)
			}
			for i := c * chunk; i < end; i++ {
				g := float64(p.Grad[i])
				m := b1*float64(s.m[i]) + (1-b1)*g
				v := b2*float64(s.v[i]) + (1-b2)*g*g
				s.m[i], s.v[i] = float32(m), float32(v)
				p.Value[i] -= float32(alpha * m / (math.Sqrt(v) + eps))
			}
		})
	}
}
