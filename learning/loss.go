package learning

import "math"

// ClipEpsilon bounds probabilities away from 0 and 1 inside the loss
const ClipEpsilon = 1e-7

// Threshold separates the two classes
const Threshold = 0.5

// BinaryCrossEntropy returns the mean loss over the batch and the gradient
// of that mean with respect to the logits feeding the final sigmoid.
func BinaryCrossEntropy(probs, labels []float32) (loss float64, dlogits []float32) {
	n := len(probs)
	if n == 0 {
		return 0, nil
	}
	dlogits = make([]float32, n)
	for i, p := range probs {
		y := float64(labels[i])
		q := math.Min(math.Max(float64(p), ClipEpsilon), 1-ClipEpsilon)
		loss -= y*math.Log(q) + (1-y)*math.Log(1-q)
		dlogits[i] = (p - labels[i]) / float32(n)
	}
	return loss / float64(n), dlogits
}

// Correct counts predictions on the right side of Threshold
func Correct(probs, labels []float32) (n int) {
	for i, p := range probs {
		if (p > Threshold) == (labels[i] > Threshold) {
			n++
		}
	}
	return
}

// Accuracy is the share of correct predictions
func Accuracy(probs, labels []float32) float64 {
	if len(probs) == 0 {
		return 0
	}
	return float64(Correct(probs, labels)) / float64(len(probs))
}
