package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dmodel "deckflow/internal/model"
)

func TestPutListLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "slides"))
	require.NoError(t, s.Reset())

	for _, i := range []int{10, 2, 1} {
		sl := &dmodel.RenderedSlide{Index: i, HTML: "<p>slide</p>"}
		require.NoError(t, s.Put(sl))
		assert.Equal(t, s.Path(i), sl.Path)
	}
	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "presentation.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "0.html"), []byte("x"), 0o644))

	entries, err := s.List()
	require.NoError(t, err)
	var got []int
	for _, e := range entries {
		got = append(got, e.Index)
	}
	assert.Equal(t, []int{1, 2, 10}, got)

	sl, err := s.Load(2)
	require.NoError(t, err)
	assert.Equal(t, "<p>slide</p>", sl.HTML)

	_, err = s.Load(3)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResetClearsPreviousRun(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "slides"))
	require.NoError(t, s.Reset())
	for i := 1; i <= 8; i++ {
		require.NoError(t, s.Put(&dmodel.RenderedSlide{Index: i, HTML: "old"}))
	}

	require.NoError(t, s.Reset())
	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// a second reset on an empty store is a no-op
	require.NoError(t, s.Reset())
	require.NoError(t, s.Put(&dmodel.RenderedSlide{Index: 1, HTML: "new"}))
	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].HTML)
}

func TestPutRejectsBadIndex(t *testing.T) {
	s := New(t.TempDir())
	assert.Error(t, s.Put(&dmodel.RenderedSlide{Index: 0}))
}

func TestListMissingDir(t *testing.T) {
	entries, err := New(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
