// Package main prints the caries probability of each image file given on the
// command line, using either the saved weights or the quantized tflite model.
package main
