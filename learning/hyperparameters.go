// Package learning implements the optimizer, loss and metric of the caries classifier
package learning

// HyperParameters of the Adam optimizer
type HyperParameters struct {
	LearningRate float64 // initial step size
	Beta1        float64 // decay of the first moment
	Beta2        float64 // decay of the second moment
	Epsilon      float64 // added to the root of the second moment
}

// DefaultHyperParameters returns Adam with the usual betas and learning rate lr
func DefaultHyperParameters(lr float64) HyperParameters {
	return HyperParameters{
		LearningRate: lr,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}
