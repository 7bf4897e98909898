package layer

// Combiner is the runtime half of a layer. It owns the parameters and
// caches whatever the backward pass needs from the last forward pass.
type Combiner interface {

	// Kind is a short lowercase name used to label parameters, e.g. "conv2d".
	Kind() string

	// Forward computes the outputs for a batch. In training mode the combiner
	// may use batch statistics or random masks and caches its inputs.
	Forward(x *Tensor, training bool) *Tensor

	// Backward takes the gradient of the loss with respect to the last Forward
	// output, stores parameter gradients and returns the input gradient.
	Backward(grad *Tensor) *Tensor

	// Params returns the parameters, trainable or not, in a stable order.
	Params() []*Param

	// OutputShape is the shape of one output sample.
	OutputShape() Shape
}
