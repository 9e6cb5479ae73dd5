package dataset

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

func grays(n int, v uint8) []*image.Gray {
	out := make([]*image.Gray, n)
	for i := range out {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for p := range img.Pix {
			img.Pix[p] = v + uint8(i)
		}
		out[i] = img
	}
	return out
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	es, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range es {
		names = append(names, e.Name())
	}
	return names
}

func TestCreate_BuildsOneDirPerLabel(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	d, err := Create(root, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, []string{MarkerName, "center", "down", "left", "right", "up"}, entries(t, root))
	for _, l := range gaze.Labels() {
		assert.Empty(t, entries(t, d.ClassDir(l)))
	}
}

func TestCreate_RemovesLeftovers(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")

	first, err := Create(root, nil)
	require.NoError(t, err)
	for _, l := range gaze.Labels() {
		_, err := first.Write(l, grays(3, 10))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))
	// first is deliberately not closed: simulate a crashed session.

	second, err := Create(root, nil)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, []string{MarkerName, "center", "down", "left", "right", "up"}, entries(t, root))
	for _, l := range gaze.Labels() {
		assert.Empty(t, entries(t, second.ClassDir(l)), "label %s", l)
		assert.Equal(t, 0, second.Count(l))
	}
}

func TestCreate_RefusesForeignDirectory(t *testing.T) {
	root := t.TempDir()
	thesis := filepath.Join(root, "thesis.txt")
	require.NoError(t, os.WriteFile(thesis, []byte("draft"), 0o644))

	_, err := Create(root, nil)
	assert.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, ErrNotOwned)

	_, err = os.Stat(thesis)
	assert.NoError(t, err, "foreign file kept")
}

func TestCreate_AcceptsEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	d, err := Create(root, nil)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestRemove(t *testing.T) {
	base := t.TempDir()

	assert.NoError(t, Remove(filepath.Join(base, "missing")))

	owned := filepath.Join(base, "owned")
	_, err := Create(owned, nil)
	require.NoError(t, err)
	require.NoError(t, Remove(owned))
	_, err = os.Stat(owned)
	assert.True(t, os.IsNotExist(err))

	foreign := filepath.Join(base, "foreign")
	require.NoError(t, os.MkdirAll(filepath.Join(foreign, "left"), 0o755))
	assert.ErrorIs(t, Remove(foreign), ErrNotOwned)
	_, err = os.Stat(filepath.Join(foreign, "left"))
	assert.NoError(t, err)

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.ErrorIs(t, Remove(file), ErrNotOwned)
}

func TestCreate_FailsWhenRootIsUnderAFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o644))

	_, err := Create(filepath.Join(parent, "data"), nil)
	assert.ErrorIs(t, err, ErrAssembly)
}

func TestCreate_EmptyRoot(t *testing.T) {
	_, err := Create("", nil)
	assert.ErrorIs(t, err, ErrAssembly)
}

func TestWrite_NumbersFromOnePerClass(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	d, err := Create(root, nil)
	require.NoError(t, err)
	defer d.Close()

	paths, err := d.Write(gaze.Left, grays(3, 0))
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(root, "left", "left1.png"), paths[0])
	assert.Equal(t, filepath.Join(root, "left", "left3.png"), paths[2])

	more, err := d.Write(gaze.Left, grays(2, 0))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "left", "left5.png"), more[1])

	up, err := d.Write(gaze.Up, grays(1, 0))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "up", "up1.png"), up[0])

	assert.Equal(t, 5, d.Count(gaze.Left))
	assert.False(t, d.Complete())
}

func TestWrite_RoundTripsPixels(t *testing.T) {
	d, err := Create(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	defer d.Close()

	in := grays(1, 42)
	paths, err := d.Write(gaze.Down, in)
	require.NoError(t, err)

	out, err := d.Codec().Decode(paths[0])
	require.NoError(t, err)
	assert.Equal(t, in[0].Pix, out.Pix)
}

func TestClose_RemovesTreeAndIsIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	d, err := Create(root, nil)
	require.NoError(t, err)
	_, err = d.Write(gaze.Center, grays(2, 0))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, d.Close())
	_, err = d.Write(gaze.Center, grays(1, 0))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestComplete(t *testing.T) {
	d, err := Create(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	defer d.Close()

	for i, l := range gaze.Labels() {
		assert.False(t, d.Complete(), "before label %d", i)
		_, err := d.Write(l, grays(1, 0))
		require.NoError(t, err)
	}
	assert.True(t, d.Complete())
}
