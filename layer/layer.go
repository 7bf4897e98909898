// Package layer defines the layer and combiner interfaces of the caries network
package layer

// Layer is the layer which can be used for instantiating a combiner
type Layer interface {

	// Lay creates a combiner reading inputs of shape in (batch dimension excluded)
	Lay(in Shape) (Combiner, error)
}
