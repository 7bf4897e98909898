// Package trainer fits the caries network: the epoch loop, validation,
// the callbacks reacting to val_accuracy and the training history.
package trainer
