// Package main trains the dental caries classifier on the TFRecord crops under
// the data directory and writes the best, final and quantized models. The
// quantized model_esp32.tflite has uint8 input and output for microcontrollers.
package main
