package config

import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 96, c.ImageSize)
	assert.Equal(t, 32, c.BatchSize)
	assert.Equal(t, 100, c.Epochs)
	assert.Equal(t, 1000, c.ShuffleBuffer)
	assert.Equal(t, 1e-4, c.LearningRate)
	assert.Equal(t, filepath.Join("models", "model_esp32.tflite"), c.TFLitePath())
	assert.Equal(t, filepath.Join("data", "train", "teeth-ARWb-udNj.tfrecord"), c.TrainPath())
	assert.Equal(t, filepath.Join("data", "valid", "teeth-ARWb-udNj.tfrecord"), c.ValidPath())
	assert.Equal(t, filepath.Join("logs", "abc"), c.RunLogDir("abc"))
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caries.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs: 3\nbase_dir: "+dir+"\nmodel_dir: /tmp/m\nresampler: lanczos\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Epochs)
	assert.Equal(t, 32, c.BatchSize)
	assert.Equal(t, "/tmp/m", c.Models())
	assert.Equal(t, filepath.Join(dir, "data"), c.Data())
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(*Config)
	}{
		{"batch", func(c *Config) { c.BatchSize = 0 }},
		{"image", func(c *Config) { c.ImageSize = -1 }},
		{"factor", func(c *Config) { c.ReduceFactor = 1 }},
		{"dropout", func(c *Config) { c.DropoutRate = 1 }},
		{"resampler", func(c *Config) { c.Resampler = "cubic" }},
		{"lr", func(c *Config) { c.LearningRate = 0 }},
		{"patience", func(c *Config) { c.StopPatience = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.edit(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs: [\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestCreateDirectories(t *testing.T) {
	c := Default()
	c.BaseDir = t.TempDir()
	require.NoError(t, c.CreateDirectories())
	require.NoError(t, c.CreateDirectories())
	for _, d := range []string{c.Models(), c.Data(), c.Logs()} {
		st, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
}
