package diskio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	f, err := Create(path)
	require.NoError(t, err)

	payload := []byte("niffler page contents")
	require.NoError(t, f.WriteAt(payload, 4096))
	require.NoError(t, f.Sync())

	size, err := f.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4096+len(payload), size)
	require.NoError(t, f.Close())

	f2, err := Open(path)
	require.NoError(t, err)
	defer f2.Close()

	buf := make([]byte, len(payload))
	require.NoError(t, f2.ReadAt(buf, 4096))
	require.Equal(t, payload, buf)
}

func TestShortReadIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.WriteAt([]byte("ab"), 0))

	buf := make([]byte, 16)
	require.Error(t, f.ReadAt(buf, 0))
}

func TestTruncateShrinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.WriteAt(make([]byte, 8192), 0))
	require.NoError(t, f.Truncate(4096))

	size, err := f.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4096, size)
}
