package layer

import "fmt"

// Shape is a tensor shape. Combiners see per-sample shapes, tensors carry the
// batch size as the first dimension.
type Shape []int

// Size is the number of elements described by the shape.
func (s Shape) Size() int {
	n := 1
	for _, v := range s {
		n *= v
	}
	return n
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Batched prepends a batch dimension.
func (s Shape) Batched(batch int) Shape {
	return append(Shape{batch}, s...)
}

func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

// Tensor is a dense float32 tensor in row-major (NHWC for images) order.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor allocates a zero tensor.
func NewTensor(shape ...int) *Tensor {
	s := Shape(shape)
	return &Tensor{Shape: s, Data: make([]float32, s.Size())}
}

// Batch is the first dimension of the tensor.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleSize is the number of elements of one sample.
func (t *Tensor) SampleSize() int {
	return Shape(t.Shape[1:]).Size()
}

// Sample returns the n-th sample as a slice aliasing the tensor data.
func (t *Tensor) Sample(n int) []float32 {
	size := t.SampleSize()
	return t.Data[n*size : (n+1)*size]
}

// Reshape returns a tensor sharing the data with a new shape.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	s := Shape(shape)
	if s.Size() != len(t.Data) {
		panic(fmt.Sprintf("reshape %v to %v: size mismatch", t.Shape, s))
	}
	return &Tensor{Shape: s, Data: t.Data}
}
