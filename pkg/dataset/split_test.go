package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

func filled(t *testing.T, perClass int) *Dir {
	t.Helper()
	d, err := Create(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	for _, l := range gaze.Labels() {
		_, err := d.Write(l, grays(perClass, uint8(l)*40))
		require.NoError(t, err)
	}
	return d
}

func TestScan_LabelsFromDirectories(t *testing.T) {
	d := filled(t, 3)
	samples, err := Scan(d.Root(), "png")
	require.NoError(t, err)
	require.Len(t, samples, 15)

	for i, s := range samples {
		want := gaze.Label(i / 3)
		assert.Equal(t, want, s.Label)
		assert.Equal(t, d.ClassDir(want), filepath.Dir(s.Path))
	}
}

func TestScan_RejectsUnknownDirectory(t *testing.T) {
	d := filled(t, 1)
	require.NoError(t, os.Mkdir(filepath.Join(d.Root(), "sideways"), 0o755))
	_, err := Scan(d.Root(), "png")
	assert.Error(t, err)
}

func TestLoad_DeterministicSplit(t *testing.T) {
	d := filled(t, 10)

	train1, val1, err := Load(d.Root(), nil, DefaultSplit())
	require.NoError(t, err)
	train2, val2, err := Load(d.Root(), nil, DefaultSplit())
	require.NoError(t, err)

	assert.Len(t, train1, 45)
	assert.Len(t, val1, 5)
	assert.Equal(t, train1, train2)
	assert.Equal(t, val1, val2)

	seen := map[string]bool{}
	for _, s := range append(append([]Sample{}, train1...), val1...) {
		assert.False(t, seen[s.Path], "duplicate %s", s.Path)
		seen[s.Path] = true
	}
	assert.Len(t, seen, 50)
}

func TestPartition_SeedChangesSplit(t *testing.T) {
	d := filled(t, 10)
	samples, err := Scan(d.Root(), "png")
	require.NoError(t, err)

	_, valA, err := Partition(samples, Split{Validation: 0.1, Seed: 1})
	require.NoError(t, err)
	_, valB, err := Partition(samples, Split{Validation: 0.1, Seed: 2})
	require.NoError(t, err)
	assert.NotEqual(t, valA, valB)
}

func TestPartition_TooSmall(t *testing.T) {
	d := filled(t, 1)
	samples, err := Scan(d.Root(), "png")
	require.NoError(t, err)

	_, _, err = Partition(samples, DefaultSplit())
	assert.ErrorIs(t, err, ErrTooSmall)

	_, _, err = Partition(nil, DefaultSplit())
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestPartition_BadFraction(t *testing.T) {
	_, _, err := Partition([]Sample{{}, {}}, Split{Validation: 1.5})
	assert.Error(t, err)
}
