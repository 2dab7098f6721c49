package rewrite

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatchURL(t *testing.T) {
	r := New(nil, nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://colonist.io/dist/web.4f3a2b.js", true},
		{"https://colonist.io/dist/web.0abc99.js?v=12", true},
		{"https://colonist.io/dist/vendor.4f3a2b.js", false},
		{"https://colonist.io/dist/web.4f3a2b.css", false},
		{"https://example.com/dist/web.4f3a2b.js", false},
		{"https://colonist.io/gameRoom", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.MatchURL(tt.url), tt.url)
	}
}

func TestApplyPatchesBody(t *testing.T) {
	r := New(zap.NewNop(), nil)
	body := []byte("prefix;this.forceHideAds=!1,this.uiGameManager=e,suffix;" +
		"this.endGameState=t,this.isReplayAvailable=i,end")

	out, patched, err := r.Apply(body, "")
	require.NoError(t, err)
	assert.True(t, patched)
	assert.Contains(t, string(out), "window.uiGameManager=e")
	assert.Contains(t, string(out), "window.endGameState=t")
	assert.NotContains(t, string(out), "forceHideAds=!1")
}

func TestApplyMissingLiteralIsNoOp(t *testing.T) {
	r := New(zap.NewNop(), nil)
	body := []byte("a completely different bundle")

	out, patched, err := r.Apply(body, "")
	require.NoError(t, err)
	assert.False(t, patched)
	// Input must come back byte for byte so the caller forwards the
	// original response with its encoding metadata intact.
	assert.Equal(t, body, out)
}

func TestApplyMissingLiteralKeepsEncodedBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("no patch targets here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	encoded := buf.Bytes()

	r := New(zap.NewNop(), nil)
	out, patched, err := r.Apply(encoded, "gzip")
	require.NoError(t, err)
	assert.False(t, patched)
	assert.Equal(t, encoded, out, "unpatched body must stay compressed")
}

func TestApplyDecodesGzip(t *testing.T) {
	plain := "x;this.forceHideAds=!1,this.uiGameManager=e,y"
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r := New(zap.NewNop(), nil)
	out, patched, err := r.Apply(buf.Bytes(), "gzip")
	require.NoError(t, err)
	assert.True(t, patched)
	assert.Contains(t, string(out), "window.uiGameManager=e")
}

func TestApplyCorruptGzip(t *testing.T) {
	r := New(zap.NewNop(), nil)
	_, patched, err := r.Apply([]byte("not gzip at all"), "gzip")
	assert.Error(t, err)
	assert.False(t, patched)
}

func TestApplyBoundsOccurrences(t *testing.T) {
	r := New(zap.NewNop(), []Patch{{Find: "aaa", Replace: "b"}})
	out, patched, err := r.Apply([]byte("aaa aaa aaa"), "")
	require.NoError(t, err)
	assert.True(t, patched)
	assert.Equal(t, "b aaa aaa", string(out))

	r = New(zap.NewNop(), []Patch{{Find: "aaa", Replace: "b", Max: 2}})
	out, _, err = r.Apply([]byte("aaa aaa aaa"), "")
	require.NoError(t, err)
	assert.Equal(t, "b b aaa", string(out))
}

func TestLoadPatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patches:
  - find: "foo"
    replace: "bar"
    max: 2
`), 0o644))

	patches, err := LoadPatchFile(path)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, Patch{Find: "foo", Replace: "bar", Max: 2}, patches[0])
}

func TestLoadPatchFileRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patches.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patches: []\n"), 0o644))

	_, err := LoadPatchFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
patches:
  - find: ""
    replace: "x"
`), 0o644))
	_, err = LoadPatchFile(path)
	assert.Error(t, err)
}

func TestWatchPatchFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patches:
  - find: "old"
    replace: "x"
`), 0o644))

	r := New(zap.NewNop(), mustLoad(t, path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WatchPatchFile(ctx, path, r, zap.NewNop())
	}()

	// Give the watcher a moment to register before the write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
patches:
  - find: "new"
    replace: "y"
`), 0o644))

	assert.Eventually(t, func() bool {
		p := r.Patches()
		return len(p) == 1 && p[0].Find == "new"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func mustLoad(t *testing.T, path string) []Patch {
	t.Helper()
	patches, err := LoadPatchFile(path)
	require.NoError(t, err)
	return patches
}
