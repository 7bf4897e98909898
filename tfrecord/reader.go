// Package tfrecord reads and writes TFRecord files and the tf.Example messages they carry
package tfrecord

import "bufio"
import "encoding/binary"
import "io"
import "os"

import "github.com/pkg/errors"

var (
	// ErrTruncated is returned when a record ends before its declared size
	ErrTruncated = errors.New("tfrecord: truncated record")
	// ErrCorrupt is returned on a checksum mismatch
	ErrCorrupt = errors.New("tfrecord: checksum mismatch")
)

const headerSize = 8 + 4

// MaxRecordSize guards against allocating for a garbage length field
const MaxRecordSize = 1 << 30

// Reader reads records one by one
type Reader struct {
	r      *bufio.Reader
	header [headerSize]byte
	footer [4]byte
	n      int
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next record payload. It returns io.EOF at a clean end of file.
func (r *Reader) Next() ([]byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(ErrTruncated, "record %d header, %d of %d bytes", r.n, n, headerSize)
	}
	length := binary.LittleEndian.Uint64(r.header[:8])
	if maskedCRC(r.header[:8]) != binary.LittleEndian.Uint32(r.header[8:]) {
		return nil, errors.Wrapf(ErrCorrupt, "record %d length", r.n)
	}
	if length > MaxRecordSize {
		return nil, errors.Wrapf(ErrCorrupt, "record %d length %d", r.n, length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, errors.Wrapf(ErrTruncated, "record %d data", r.n)
	}
	if _, err := io.ReadFull(r.r, r.footer[:]); err != nil {
		return nil, errors.Wrapf(ErrTruncated, "record %d checksum", r.n)
	}
	if maskedCRC(data) != binary.LittleEndian.Uint32(r.footer[:]) {
		return nil, errors.Wrapf(ErrCorrupt, "record %d data", r.n)
	}
	r.n++
	return data, nil
}

// Count scans the whole file and returns the number of records
func Count(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "count records")
	}
	defer f.Close()
	r := NewReader(f)
	var n int
	for {
		_, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "count records in %s", path)
		}
		n++
	}
}

// Each calls fn with every record of the file in order
func Each(path string, fn func(record []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open records")
	}
	defer f.Close()
	r := NewReader(f)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, path)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
