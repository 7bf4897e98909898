package datasets

import "bytes"
import "context"
import "image"
import "image/jpeg"
import "io"
import "math"
import "os"
import "path/filepath"
import "sort"
import "testing"

import "github.com/janpfeifer/must"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/tfrecord"

// record n is a flat gray image of level 3n, labelled caries when n is odd
func records(t testing.TB, n int) [][]byte {
	var out [][]byte
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for p := range img.Pix {
			img.Pix[p] = uint8(3 * i)
		}
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
		out = append(out, tfrecord.MarshalExample(tfrecord.Features{
			caries.ImageKey: tfrecord.BytesFeature(buf.Bytes()),
			caries.LabelKey: tfrecord.Int64Feature(int64(i % 2)),
		}))
	}
	return out
}

func ids(b *Batch) (o []int) {
	for i := 0; i < b.Len(); i++ {
		o = append(o, int(math.Round(float64(b.Images.Sample(i)[0])*255/3)))
	}
	return
}

func opts() Options {
	return Options{BatchSize: 32, ShuffleBuffer: 1000, PrefetchDepth: 2, Workers: 4, ImageSize: 8, Seed: 1}
}

func TestValidationPass(t *testing.T) {
	l := NewRecordsLoader(records(t, 70), false, opts())
	it := l.Iterate(context.Background())
	defer it.Close()

	var sizes, seen []int
	for {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, b.Len())
		assert.Equal(t, []int{b.Len(), 8, 8, 3}, []int(b.Images.Shape))
		for i, id := range ids(b) {
			assert.Equal(t, float32(id%2), b.Labels[i])
		}
		seen = append(seen, ids(b)...)
	}
	assert.Equal(t, []int{32, 32, 6}, sizes)
	for i, id := range seen {
		require.Equal(t, i, id, "validation keeps file order")
	}
}

func TestTrainingRepeatsShuffled(t *testing.T) {
	l := NewRecordsLoader(records(t, 64), true, opts())
	it := l.Iterate(context.Background())
	defer it.Close()

	for pass := 0; pass < 3; pass++ {
		var seen []int
		for k := 0; k < 2; k++ {
			b, err := it.Next()
			require.NoError(t, err)
			require.Equal(t, 32, b.Len())
			seen = append(seen, ids(b)...)
		}
		assert.False(t, sort.IntsAreSorted(seen), "pass %d is shuffled", pass)
		sort.Ints(seen)
		for i, id := range seen {
			require.Equal(t, i, id, "pass %d holds every record once", pass)
		}
	}
}

func TestTrainingEmpty(t *testing.T) {
	it := NewRecordsLoader(nil, true, opts()).Iterate(context.Background())
	defer it.Close()
	_, err := it.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestMalformedRecord(t *testing.T) {
	recs := append(records(t, 5), []byte("garbage"))
	it := NewRecordsLoader(recs, false, opts()).Iterate(context.Background())
	defer it.Close()
	_, err := it.Next()
	assert.ErrorIs(t, err, tfrecord.ErrMalformed)
}

func TestCloseEarly(t *testing.T) {
	it := NewRecordsLoader(records(t, 40), true, opts()).Iterate(context.Background())
	_, err := it.Next()
	require.NoError(t, err)
	assert.NoError(t, it.Close())
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid.tfrecord")
	f := must.M1(os.Create(path))
	w := tfrecord.NewWriter(f)
	for _, r := range records(t, 10) {
		must.M(w.Write(r))
	}
	must.M(f.Close())

	l := NewLoader(path, false, opts())
	n, err := l.Count()
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	it := l.Iterate(context.Background())
	defer it.Close()
	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 10, b.Len())
	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
}
