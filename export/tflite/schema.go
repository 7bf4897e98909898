package tflite

import "fmt"

// TensorType is the element type of a tensor
type TensorType int8

const (
	Float32 TensorType = 0
	Int32   TensorType = 2
	Uint8   TensorType = 3
	Int64   TensorType = 4
	Int8    TensorType = 9
)

func (t TensorType) String() string {
	switch t {
	case Float32:
		return "FLOAT32"
	case Int32:
		return "INT32"
	case Uint8:
		return "UINT8"
	case Int64:
		return "INT64"
	case Int8:
		return "INT8"
	}
	return fmt.Sprintf("TensorType(%d)", int8(t))
}

// builtin operator codes
const (
	opConv2D         = 3
	opFullyConnected = 9
	opLogistic       = 14
	opMaxPool2D      = 17
	opReshape        = 22
	opQuantize       = 114
)

var opNames = map[int32]string{
	opConv2D:         "CONV_2D",
	opFullyConnected: "FULLY_CONNECTED",
	opLogistic:       "LOGISTIC",
	opMaxPool2D:      "MAX_POOL_2D",
	opReshape:        "RESHAPE",
	opQuantize:       "QUANTIZE",
}

// opVersions are the versions of the int8 kernels
var opVersions = map[int32]int32{
	opConv2D:         3,
	opFullyConnected: 4,
	opLogistic:       2,
	opMaxPool2D:      2,
	opReshape:        1,
	opQuantize:       2,
}

// builtin options union members
const (
	optionsNone           = 0
	optionsConv2D         = 1
	optionsPool2D         = 5
	optionsFullyConnected = 8
	optionsReshape        = 17
)

// padding and fused activation enums
const (
	paddingSame  = 0
	paddingValid = 1

	activationNone = 0
	activationRelu = 1
)

// schemaVersion is the model format version
const schemaVersion = 3

// fileIdentifier of a model flatbuffer
const fileIdentifier = "TFL3"
