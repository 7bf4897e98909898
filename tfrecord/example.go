package tfrecord

import "math"
import "sort"

import "github.com/pkg/errors"
import "google.golang.org/protobuf/encoding/protowire"

// ErrMalformed is returned when a record does not hold a valid tf.Example
var ErrMalformed = errors.New("tfrecord: malformed example")

// Kind is the populated list of a feature
type Kind int

const (
	KindNone Kind = iota
	KindBytes
	KindFloat
	KindInt64
)

// tf.Example field numbers
const (
	exampleFeatures  = 1
	featuresFeature  = 1
	mapKey           = 1
	mapValue         = 2
	featureBytesList = 1
	featureFloatList = 2
	featureInt64List = 3
	listValue        = 1
)

// Feature is one tf.Feature. Only the list named by Kind is populated.
type Feature struct {
	Kind   Kind
	Bytes  [][]byte
	Floats []float32
	Int64s []int64
}

// Features maps feature names to values
type Features map[string]Feature

// BytesFeature builds a bytes_list feature
func BytesFeature(v ...[]byte) Feature {
	return Feature{Kind: KindBytes, Bytes: v}
}

// Int64Feature builds an int64_list feature
func Int64Feature(v ...int64) Feature {
	return Feature{Kind: KindInt64, Int64s: v}
}

// FloatFeature builds a float_list feature
func FloatFeature(v ...float32) Feature {
	return Feature{Kind: KindFloat, Floats: v}
}

// Bytes returns the byte strings of key, ok is false when key is absent or holds another kind
func (f Features) Bytes(key string) (v [][]byte, ok bool) {
	feat, ok := f[key]
	if !ok || feat.Kind != KindBytes {
		return nil, false
	}
	return feat.Bytes, true
}

// Int64s returns the integers of key, ok is false when key is absent or holds another kind
func (f Features) Int64s(key string) (v []int64, ok bool) {
	feat, ok := f[key]
	if !ok || feat.Kind != KindInt64 {
		return nil, false
	}
	return feat.Int64s, true
}

// Floats returns the floats of key, ok is false when key is absent or holds another kind
func (f Features) Floats(key string) (v []float32, ok bool) {
	feat, ok := f[key]
	if !ok || feat.Kind != KindFloat {
		return nil, false
	}
	return feat.Floats, true
}

// fields walks the top level fields of a message
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(m))
		}
		if err := fn(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func bytesValue(v []byte) ([]byte, error) {
	s, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
	}
	return s, nil
}

// ParseExample decodes a serialized tf.Example. Unknown fields are skipped.
func ParseExample(b []byte) (Features, error) {
	out := Features{}
	err := fields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != exampleFeatures || typ != protowire.BytesType {
			return nil
		}
		msg, err := bytesValue(v)
		if err != nil {
			return err
		}
		return parseFeatures(msg, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseFeatures(b []byte, out Features) error {
	return fields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != featuresFeature || typ != protowire.BytesType {
			return nil
		}
		entry, err := bytesValue(v)
		if err != nil {
			return err
		}
		var key string
		var feat Feature
		err = fields(entry, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if typ != protowire.BytesType {
				return nil
			}
			s, err := bytesValue(v)
			if err != nil {
				return err
			}
			switch num {
			case mapKey:
				key = string(s)
			case mapValue:
				feat, err = parseFeature(s)
			}
			return err
		})
		if err != nil {
			return err
		}
		out[key] = feat
		return nil
	})
}

func parseFeature(b []byte) (feat Feature, err error) {
	err = fields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		list, err := bytesValue(v)
		if err != nil {
			return err
		}
		switch num {
		case featureBytesList:
			feat = Feature{Kind: KindBytes}
			return fields(list, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num != listValue || typ != protowire.BytesType {
					return nil
				}
				s, err := bytesValue(v)
				feat.Bytes = append(feat.Bytes, s)
				return err
			})
		case featureFloatList:
			feat = Feature{Kind: KindFloat}
			return fields(list, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num != listValue {
					return nil
				}
				switch typ {
				case protowire.Fixed32Type:
					x, _ := protowire.ConsumeFixed32(v)
					feat.Floats = append(feat.Floats, math.Float32frombits(x))
				case protowire.BytesType:
					packed, err := bytesValue(v)
					if err != nil {
						return err
					}
					for len(packed) > 0 {
						x, n := protowire.ConsumeFixed32(packed)
						if n < 0 {
							return errors.Wrap(ErrMalformed, "packed float_list")
						}
						feat.Floats = append(feat.Floats, math.Float32frombits(x))
						packed = packed[n:]
					}
				}
				return nil
			})
		case featureInt64List:
			feat = Feature{Kind: KindInt64}
			return fields(list, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num != listValue {
					return nil
				}
				switch typ {
				case protowire.VarintType:
					x, _ := protowire.ConsumeVarint(v)
					feat.Int64s = append(feat.Int64s, int64(x))
				case protowire.BytesType:
					packed, err := bytesValue(v)
					if err != nil {
						return err
					}
					for len(packed) > 0 {
						x, n := protowire.ConsumeVarint(packed)
						if n < 0 {
							return errors.Wrap(ErrMalformed, "packed int64_list")
						}
						feat.Int64s = append(feat.Int64s, int64(x))
						packed = packed[n:]
					}
				}
				return nil
			})
		}
		return nil
	})
	return
}

// MarshalExample encodes features as a tf.Example with keys in sorted order
// and numeric lists packed.
func MarshalExample(f Features) []byte {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, mapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, marshalFeature(f[k]))

		features = protowire.AppendTag(features, featuresFeature, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}
	var out []byte
	out = protowire.AppendTag(out, exampleFeatures, protowire.BytesType)
	return protowire.AppendBytes(out, features)
}

func marshalFeature(feat Feature) []byte {
	var list []byte
	var num protowire.Number
	switch feat.Kind {
	case KindBytes:
		num = featureBytesList
		for _, v := range feat.Bytes {
			list = protowire.AppendTag(list, listValue, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
	case KindFloat:
		num = featureFloatList
		var packed []byte
		for _, v := range feat.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	case KindInt64:
		num = featureInt64List
		var packed []byte
		for _, v := range feat.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		return nil
	}
	var out []byte
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}
