package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nested-ml/nested/internal/checkpoint"
	"github.com/nested-ml/nested/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), values)
	return r
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nstd")

	stateDict := map[string]*tensor.RawTensor{
		"model.weight": raw(t, tensor.Shape{2, 2}, 1, 2, 3, 4),
		"model.bias":   raw(t, tensor.Shape{2}, -0.5, 0.5),
		"opt.step":     raw(t, tensor.Shape{1}, 42),
	}
	run := checkpoint.RunMeta{RunID: "test-run", Step: 42, Loss: 0.125}

	require.NoError(t, checkpoint.Save(path, stateDict, run, map[string]string{"rule": "adam"}))

	loaded, header, err := checkpoint.Load(path, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, run, header.Run)
	assert.Equal(t, "adam", header.Metadata["rule"])
	require.Len(t, loaded, 3)
	for name, want := range stateDict {
		got, ok := loaded[name]
		require.True(t, ok, "missing tensor %s", name)
		assert.True(t, got.Shape().Equal(want.Shape()), "shape mismatch for %s", name)
		assert.Equal(t, want.AsFloat32(), got.AsFloat32(), "data mismatch for %s", name)
	}
}

func TestSave_Deterministic(t *testing.T) {
	dir := t.TempDir()
	stateDict := map[string]*tensor.RawTensor{
		"b": raw(t, tensor.Shape{1}, 2),
		"a": raw(t, tensor.Shape{1}, 1),
		"c": raw(t, tensor.Shape{1}, 3),
	}
	run := checkpoint.RunMeta{RunID: "fixed"}

	p1 := filepath.Join(dir, "one.nstd")
	p2 := filepath.Join(dir, "two.nstd")
	require.NoError(t, checkpoint.Save(p1, stateDict, run, nil))
	require.NoError(t, checkpoint.Save(p2, stateDict, run, nil))

	h1, err := checkpoint.ReadHeader(p1)
	require.NoError(t, err)
	h2, err := checkpoint.ReadHeader(p2)
	require.NoError(t, err)

	require.Len(t, h1.Tensors, 3)
	assert.Equal(t, h1.Tensors, h2.Tensors)
	assert.Equal(t, "a", h1.Tensors[0].Name)
	assert.Equal(t, "c", h1.Tensors[2].Name)
}

func TestLoad_CorruptedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nstd")
	stateDict := map[string]*tensor.RawTensor{
		"model.weight": raw(t, tensor.Shape{4}, 1, 2, 3, 4),
	}
	require.NoError(t, checkpoint.Save(path, stateDict, checkpoint.RunMeta{}, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-checkpoint.ChecksumSize-1] ^= 0xFF // Flip a data byte.
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, _, err = checkpoint.Load(path, tensor.CPU)
	assert.ErrorIs(t, err, checkpoint.ErrChecksumMismatch)
}

func TestLoad_InvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.nstd")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o644))

	_, _, err := checkpoint.Load(path, tensor.CPU)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidMagic)
}

func TestLoad_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.nstd")
	require.NoError(t, os.WriteFile(path, []byte("NSTD"), 0o644))

	_, _, err := checkpoint.Load(path, tensor.CPU)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := checkpoint.Load(filepath.Join(t.TempDir(), "absent.nstd"), tensor.CPU)
	assert.Error(t, err)
}

func TestSave_RejectsBadTensorName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nstd")
	stateDict := map[string]*tensor.RawTensor{
		"": raw(t, tensor.Shape{1}, 1),
	}
	err := checkpoint.Save(path, stateDict, checkpoint.RunMeta{}, nil)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidTensorName)
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nstd")
	stateDict := map[string]*tensor.RawTensor{
		"model.weight": raw(t, tensor.Shape{2}, 1, 2),
	}
	run := checkpoint.RunMeta{RunID: "abc", Step: 7, Loss: 0.5}
	require.NoError(t, checkpoint.Save(path, stateDict, run, nil))

	header, err := checkpoint.ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.FormatVersion, header.FormatVersion)
	assert.Equal(t, run, header.Run)
	require.Len(t, header.Tensors, 1)
	assert.Equal(t, []int{2}, header.Tensors[0].Shape)
}
