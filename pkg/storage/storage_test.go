package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Run("missing file", func(t *testing.T) {
		assert.False(t, b.Exists("A.RAW"))
		_, err := b.Open("A.RAW", ModeRead)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write appends", func(t *testing.T) {
		w, err := b.Open("A.RAW", ModeWrite)
		require.NoError(t, err)
		_, err = w.Write([]byte{1, 2, 3})
		require.NoError(t, err)
		require.NoError(t, w.Close())

		w, err = b.Open("A.RAW", ModeWrite)
		require.NoError(t, err)
		_, err = w.Write([]byte{4})
		require.NoError(t, err)
		assert.Equal(t, int64(4), w.Size())
		require.NoError(t, w.Close())
		assert.True(t, b.Exists("A.RAW"))
	})

	t.Run("read and seek", func(t *testing.T) {
		r, err := b.Open("A.RAW", ModeRead)
		require.NoError(t, err)
		defer r.Close()

		assert.Equal(t, "A.RAW", r.Name())
		buf := make([]byte, 3)
		n, err := r.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []byte{1, 2, 3}, buf)

		require.NoError(t, r.Seek(1))
		n, _ = r.Read(buf)
		assert.Equal(t, []byte{2, 3, 4}, buf[:n])

		n, err = r.Read(buf)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)

		assert.ErrorIs(t, r.Seek(99), ErrBadSeek)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, b.Remove("A.RAW"))
		assert.False(t, b.Exists("A.RAW"))
		require.NoError(t, b.Remove("A.RAW"))
	})
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestDirBackend(t *testing.T) {
	b, err := NewDirBackend(filepath.Join(t.TempDir(), "loops"))
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestMemoryBackendHooks(t *testing.T) {
	b := NewMemoryBackend()
	boom := errors.New("card removed")
	b.Put("X.RAW", []byte{0, 0})

	b.OpenFunc = func(name string, mode Mode) error {
		if mode == ModeWrite {
			return boom
		}
		return nil
	}
	_, err := b.Open("Y.RAW", ModeWrite)
	assert.ErrorIs(t, err, boom)

	f, err := b.Open("X.RAW", ModeRead)
	require.NoError(t, err)
	b.SeekFunc = func(string, int64) error { return boom }
	assert.ErrorIs(t, f.Seek(0), boom)

	assert.Equal(t, 1, b.OpenCount("X.RAW", ModeRead))
	assert.Equal(t, 1, b.OpenCount("Y.RAW", ModeWrite))
	b.ResetOpens()
	assert.Empty(t, b.Opens)
}

func TestWAVRoundTrip(t *testing.T) {
	b := NewMemoryBackend()
	raw := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0xff, 0x7f}
	b.Put("RECORD1.RAW", raw)

	path := filepath.Join(t.TempDir(), "loop.wav")
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ExportWAV(b, "RECORD1.RAW", out, 44100))
	require.NoError(t, out.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	rate, err := ImportWAV(in, b, "RECORD2.RAW")
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)

	got, ok := b.Bytes("RECORD2.RAW")
	require.True(t, ok)
	assert.Equal(t, raw, got)
}

func TestImportWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	_, err = ImportWAV(in, NewMemoryBackend(), "RECORD1.RAW")
	assert.ErrorIs(t, err, ErrInvalidWAV)
}
