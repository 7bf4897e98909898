package tfrecord

import "encoding/binary"
import "io"

// Writer frames records
type Writer struct {
	w io.Writer
}

// NewWriter wraps w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one record
func (w *Writer) Write(data []byte) error {
	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))
	for _, b := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
