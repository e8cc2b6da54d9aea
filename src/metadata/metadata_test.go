package metadata

import (
	"path/filepath"
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	chunk1, chunk2 := xor.RandomName(), xor.RandomName()
	a, b, c := xor.RandomName(), xor.RandomName(), xor.RandomName()

	holders, err := s.Holders(chunk1)
	require.NoError(t, err)
	assert.Empty(t, holders)

	require.NoError(t, s.AddHolders(chunk1, a, b))
	require.NoError(t, s.AddHolders(chunk2, b))

	holders, err = s.Holders(chunk1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []xor.Name{a, b}, holders)

	held, err := s.ChunksHeldBy(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []xor.Name{chunk1, chunk2}, held)

	require.NoError(t, s.SetHolders(chunk1, []xor.Name{c}))
	holders, err = s.Holders(chunk1)
	require.NoError(t, err)
	assert.Equal(t, []xor.Name{c}, holders)

	held, err = s.ChunksHeldBy(a)
	require.NoError(t, err)
	assert.Empty(t, held)

	removed, err := s.RemoveAdult(b)
	require.NoError(t, err)
	assert.Equal(t, []xor.Name{chunk2}, removed)

	chunks, err := s.Chunks()
	require.NoError(t, err)
	assert.Equal(t, []xor.Name{chunk1}, chunks)

	require.NoError(t, s.RemoveHolder(chunk1, c))
	chunks, err = s.Chunks()
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestInmemStore(t *testing.T) {
	testStore(t, NewInmemStore())
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger_db"))
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestBadgerStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger_db")

	s, err := NewBadgerStore(path)
	require.NoError(t, err)

	chunk := xor.RandomName()
	a, b := xor.RandomName(), xor.RandomName()
	require.NoError(t, s.AddHolders(chunk, a, b))
	require.NoError(t, s.RemoveHolder(chunk, a))
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(path)
	require.NoError(t, err)
	defer s.Close()

	holders, err := s.Holders(chunk)
	require.NoError(t, err)
	assert.Equal(t, []xor.Name{b}, holders)

	held, err := s.ChunksHeldBy(b)
	require.NoError(t, err)
	assert.Equal(t, []xor.Name{chunk}, held)
}
