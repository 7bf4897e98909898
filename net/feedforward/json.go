package feedforward

import "compress/lzw"
import "encoding/json"
import "io"
import "os"
import "path/filepath"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/layer"

type weightsFile struct {
	Input  []int         `json:"input"`
	Layers []string      `json:"layers"`
	Params []paramRecord `json:"params"`
}

type paramRecord struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Value []float32 `json:"value"`
}

// WriteCompressedWeightsToFile writes model weights to a lzw file. The file
// is written next to name and renamed into place.
func (f *FeedforwardNetwork) WriteCompressedWeightsToFile(name string) error {
	file, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create weights file")
	}
	tmp := file.Name()
	err = f.WriteCompressedWeights(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "write weights %s", name)
	}
	return errors.Wrap(os.Rename(tmp, name), "rename weights file")
}

// WriteCompressedWeights writes model weights to a writer
func (f *FeedforwardNetwork) WriteCompressedWeights(w io.Writer) error {
	doc := weightsFile{Input: f.input}
	for _, c := range f.combiners {
		doc.Layers = append(doc.Layers, c.Kind())
	}
	for _, p := range f.Params() {
		doc.Params = append(doc.Params, paramRecord{Name: p.Name, Shape: p.Shape, Value: p.Value})
	}
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if err := json.NewEncoder(lw).Encode(&doc); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

// ReadCompressedWeightsFromFile reads model weights from a lzw file
func (f *FeedforwardNetwork) ReadCompressedWeightsFromFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "open weights file")
	}
	err = f.ReadCompressedWeights(file)
	file.Close()
	return errors.Wrapf(err, "read weights %s", name)
}

// ReadCompressedWeights reads model weights from a reader. Every network
// parameter must be present with the same shape.
func (f *FeedforwardNetwork) ReadCompressedWeights(r io.Reader) error {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()

	var doc weightsFile
	if err := json.NewDecoder(lr).Decode(&doc); err != nil {
		return errors.Wrap(err, "decode weights")
	}
	if !layer.Shape(doc.Input).Equal(f.input) {
		return errors.Wrapf(ErrShape, "stored input %v, network input %v", doc.Input, f.input)
	}
	stored := make(map[string]paramRecord, len(doc.Params))
	for _, p := range doc.Params {
		stored[p.Name] = p
	}
	params := f.Params()
	for _, p := range params {
		s, ok := stored[p.Name]
		if !ok {
			return errors.Wrapf(ErrShape, "parameter %s missing", p.Name)
		}
		if !layer.Shape(s.Shape).Equal(p.Shape) || len(s.Value) != len(p.Value) {
			return errors.Wrapf(ErrShape, "parameter %s stored as %v, network has %v", p.Name, s.Shape, p.Shape)
		}
	}
	if len(stored) != len(params) {
		return errors.Wrapf(ErrShape, "file holds %d parameters, network %d", len(stored), len(params))
	}
	for _, p := range params {
		copy(p.Value, stored[p.Name].Value)
	}
	return nil
}
