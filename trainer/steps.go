package trainer

// Steps derives the steps per epoch from the record counts: full training
// batches only, every validation sample including a short last batch.
func Steps(trainSamples, validSamples, batch int) (train, valid int) {
	if batch <= 0 {
		return 0, 0
	}
	return trainSamples / batch, (validSamples + batch - 1) / batch
}
