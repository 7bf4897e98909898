// Package datasets streams batches of decoded caries records
package datasets

import "context"
import "io"
import "math/rand"

import "github.com/pkg/errors"
import "golang.org/x/sync/errgroup"

import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/layer"
import "github.com/neurlang/caries/parallel"
import "github.com/neurlang/caries/tfrecord"

// Options of the input pipeline
type Options struct {
	BatchSize     int
	ShuffleBuffer int // training only, 0 or 1 disables shuffling
	PrefetchDepth int // batches decoded ahead of the consumer
	Workers       int // concurrent decoders, 0 means parallel.Workers
	ImageSize     int
	Resampler     caries.Resampler
	Seed          int64
}

// Batch is a stack of samples. The last batch of a validation pass may be short.
type Batch struct {
	Images *layer.Tensor
	Labels []float32
}

// Len is the number of samples
func (b *Batch) Len() int {
	return len(b.Labels)
}

// Iterator yields batches until io.EOF or an error
type Iterator interface {
	Next() (*Batch, error)
	Close() error
}

// Source starts iterators
type Source interface {
	Iterate(ctx context.Context) Iterator
}

// scanner calls fn for every record of one pass
type scanner func(fn func(record []byte) error) error

// Loader is a Source. Training loaders shuffle and repeat forever,
// validation loaders make one pass in file order.
type Loader struct {
	name     string
	scan     scanner
	training bool
	opts     Options
	pass     int64
}

// NewLoader reads records from a TFRecord file
func NewLoader(path string, training bool, opts Options) *Loader {
	return &Loader{
		name: path,
		scan: func(fn func([]byte) error) error {
			return tfrecord.Each(path, fn)
		},
		training: training,
		opts:     opts,
	}
}

// NewRecordsLoader serves records held in memory
func NewRecordsLoader(records [][]byte, training bool, opts Options) *Loader {
	return &Loader{
		name: "memory",
		scan: func(fn func([]byte) error) error {
			for _, r := range records {
				if err := fn(r); err != nil {
					return err
				}
			}
			return nil
		},
		training: training,
		opts:     opts,
	}
}

// Count makes one pass and counts the records
func (l *Loader) Count() (n int, err error) {
	err = l.scan(func([]byte) error {
		n++
		return nil
	})
	return n, errors.Wrapf(err, "count %s", l.name)
}

type result struct {
	batch *Batch
	err   error
}

type iterator struct {
	out    <-chan result
	cancel context.CancelFunc
}

func (it *iterator) Next() (*Batch, error) {
	r, ok := <-it.out
	if !ok {
		return nil, io.EOF
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.batch, nil
}

// Close stops the pipeline and waits for it to wind down
func (it *iterator) Close() error {
	it.cancel()
	for range it.out {
	}
	return nil
}

// Iterate starts the pipeline. Every call of a training loader draws a new
// shuffle order.
func (l *Loader) Iterate(ctx context.Context) Iterator {
	ctx, cancel := context.WithCancel(ctx)
	depth := l.opts.PrefetchDepth
	if depth < 0 {
		depth = 0
	}
	out := make(chan result, depth)
	seed := l.opts.Seed + l.pass
	l.pass++
	go l.run(ctx, seed, out)
	return &iterator{out: out, cancel: cancel}
}

func (l *Loader) run(parent context.Context, seed int64, out chan<- result) {
	defer close(out)

	bs := l.opts.BatchSize
	if bs <= 0 {
		bs = 1
	}
	raw := make(chan []byte, bs)
	g, ctx := errgroup.WithContext(parent)
	g.Go(func() error {
		err := l.produce(ctx, rand.New(rand.NewSource(seed)), raw)
		if err == nil {
			close(raw)
		}
		return err
	})
	g.Go(func() error {
		return l.batch(ctx, bs, raw, out)
	})
	if err := g.Wait(); err != nil && parent.Err() == nil {
		select {
		case out <- result{err: err}:
		case <-parent.Done():
		}
	}
}

// produce emits raw records, through a shuffle buffer and forever when training
func (l *Loader) produce(ctx context.Context, rng *rand.Rand, raw chan<- []byte) error {
	send := func(rec []byte) error {
		select {
		case raw <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	size := 0
	if l.training {
		size = l.opts.ShuffleBuffer
	}
	buf := make([][]byte, 0, max(size, 0))
	for {
		var n int
		err := l.scan(func(rec []byte) error {
			n++
			if size <= 1 {
				return send(rec)
			}
			if len(buf) < size {
				buf = append(buf, rec)
				return nil
			}
			i := rng.Intn(len(buf))
			rec, buf[i] = buf[i], rec
			return send(rec)
		})
		if err != nil {
			return errors.Wrapf(err, "read %s", l.name)
		}
		rng.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
		for _, rec := range buf {
			if err := send(rec); err != nil {
				return err
			}
		}
		buf = buf[:0]
		if !l.training {
			return nil
		}
		if n == 0 {
			return errors.Errorf("datasets: %s holds no records", l.name)
		}
	}
}

// batch groups raw records and decodes every group in parallel
func (l *Loader) batch(ctx context.Context, bs int, raw <-chan []byte, out chan<- result) error {
	var index int
	pending := make([][]byte, 0, bs)
	flush := func() error {
		b, err := l.decode(pending, index)
		if err != nil {
			return err
		}
		index += len(pending)
		pending = make([][]byte, 0, bs)
		select {
		case out <- result{batch: b}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for {
		select {
		case rec, ok := <-raw:
			if !ok {
				if len(pending) > 0 {
					return flush()
				}
				return nil
			}
			pending = append(pending, rec)
			if len(pending) == bs {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loader) decode(records [][]byte, first int) (*Batch, error) {
	size := l.opts.ImageSize
	b := &Batch{
		Images: layer.NewTensor(len(records), size, size, caries.Channels),
		Labels: make([]float32, len(records)),
	}
	workers := l.opts.Workers
	if workers <= 0 {
		workers = parallel.Workers()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			s, err := caries.Parse(rec, size, l.opts.Resampler)
			if err != nil {
				return errors.Wrapf(err, "%s: record %d", l.name, first+i)
			}
			copy(b.Images.Sample(i), s.Image)
			b.Labels[i] = s.Label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}
