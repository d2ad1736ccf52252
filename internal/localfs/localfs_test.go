package localfs

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/home/op/sub", 0755))
	return New(mem, "/home/op")
}

func TestLcdIntoSubdirectory(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.Lcd("sub"))
	assert.Equal(t, "/home/op/sub", f.Cwd())
}

func TestLcdRejectsFile(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, afero.WriteFile(f.backing, "/home/op/file.txt", []byte("x"), 0644))
	err := f.Lcd("file.txt")
	assert.Error(t, err)
	assert.Equal(t, "/home/op", f.Cwd())
}

func TestCopyFromWritesRelativeToCwd(t *testing.T) {
	f := newTestFS(t)
	n, err := f.CopyFrom("out.bin", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := afero.ReadFile(f.backing, "/home/op/out.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCopyToReadsRelativeToCwd(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, afero.WriteFile(f.backing, "/home/op/in.bin", []byte("world"), 0644))

	var buf bytes.Buffer
	n, err := f.CopyTo("in.bin", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "world", buf.String())
}
