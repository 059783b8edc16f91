package spool

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nvr-ai/go-detect/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScope(t *testing.T) (*Scope, string) {
	t.Helper()
	dir := t.TempDir()
	return NewScope(dir, zap.NewNop()), dir
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(des))
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestCreate(t *testing.T) {
	scope, dir := newScope(t)
	defer scope.Release()

	a, err := scope.Create("in-*.mp4")
	require.NoError(t, err)
	b, err := scope.Create("out.mp4")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(a.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path()), "in-"))
	assert.True(t, strings.HasSuffix(a.Path(), ".mp4"))
	assert.True(t, strings.HasSuffix(b.Path(), "-out.mp4"))
	assert.NotEqual(t, a.Path(), b.Path())
	assert.Len(t, entries(t, dir), 2)
}

func TestRemove_ExactlyOnce(t *testing.T) {
	scope, dir := newScope(t)
	before := testutil.ToFloat64(metrics.SpoolsActive)

	sp, err := scope.Create("x-*")
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SpoolsActive))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sp.Remove())
		}()
	}
	wg.Wait()
	require.NoError(t, scope.Release())

	assert.Empty(t, entries(t, dir))
	assert.Equal(t, before, testutil.ToFloat64(metrics.SpoolsActive))
}

func TestRemove_AlreadyGone(t *testing.T) {
	scope, _ := newScope(t)

	sp, err := scope.Create("gone-*")
	require.NoError(t, err)
	require.NoError(t, sp.CloseFile())
	require.NoError(t, os.Remove(sp.Path()))

	assert.NoError(t, sp.Remove())
	assert.NoError(t, scope.Release())
}

func TestCreate_AfterRelease(t *testing.T) {
	scope, _ := newScope(t)
	require.NoError(t, scope.Release())

	_, err := scope.Create("late-*")
	assert.Error(t, err)
}

func TestStream_ReleasesOnEOF(t *testing.T) {
	scope, dir := newScope(t)

	in, err := scope.Create("in-*")
	require.NoError(t, err)
	out, err := scope.Create("out-*")
	require.NoError(t, err)
	_, err = out.File().WriteString("annotated bytes")
	require.NoError(t, err)

	stream, err := scope.Stream(out)
	require.NoError(t, err)
	assert.Equal(t, int64(len("annotated bytes")), stream.Size())
	assert.Len(t, entries(t, dir), 2)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "annotated bytes", string(data))

	// Both spools are gone before Close is ever called.
	assert.Empty(t, entries(t, dir))
	_, err = os.Stat(in.Path())
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestStream_ReleasesOnEarlyClose(t *testing.T) {
	scope, dir := newScope(t)

	out, err := scope.Create("out-*")
	require.NoError(t, err)
	_, err = out.File().Write(make([]byte, 4<<20))
	require.NoError(t, err)

	stream, err := scope.Stream(out)
	require.NoError(t, err)

	buf := make([]byte, 1024)
	_, err = stream.Read(buf)
	require.NoError(t, err)
	assert.Len(t, entries(t, dir), 1)

	require.NoError(t, stream.Close())
	assert.Empty(t, entries(t, dir))
}

func TestStream_MissingSpool(t *testing.T) {
	scope, dir := newScope(t)

	out, err := scope.Create("out-*")
	require.NoError(t, err)
	require.NoError(t, out.Remove())

	_, err = scope.Stream(out)
	assert.Error(t, err)
	assert.Empty(t, entries(t, dir))
}
