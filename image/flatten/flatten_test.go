package flatten

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
)

func gzipBytesForTest(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type fakeView struct {
	layers []image.BlobInfo
	blobs  map[digest.Digest][]byte
}

func (f *fakeView) MediaType() string                  { return "" }
func (f *fakeView) Manifest() ([]byte, error)          { return nil, nil }
func (f *fakeView) ManifestDigest() (digest.Digest, error) { return "", nil }
func (f *fakeView) ConfigBlob(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakeView) LayerInfos() []image.BlobInfo       { return f.layers }
func (f *fakeView) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return f.blobs[info.Digest], nil
}

func tarOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644, Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func newFakeView(t *testing.T, layers [][]byte) *fakeView {
	v := &fakeView{blobs: map[digest.Digest][]byte{}}
	for _, l := range layers {
		d := digest.FromBytes(l)
		v.layers = append(v.layers, image.BlobInfo{Digest: d, Size: int64(len(l))})
		v.blobs[d] = l
	}
	return v
}

func TestExtractAppliesLayersInOrder(t *testing.T) {
	layer1 := tarOf(t, map[string]string{"foo.txt": "v1", "keep.txt": "stays"})
	layer2 := tarOf(t, map[string]string{"foo.txt": "v2"})
	v := newFakeView(t, [][]byte{layer1, layer2})

	dir := t.TempDir()
	require.NoError(t, Extract(context.Background(), dir, v))

	foo, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(foo))

	keep, err := os.ReadFile(filepath.Join(dir, "keep.txt"))
	require.NoError(t, err)
	require.Equal(t, "stays", string(keep))
}

func TestExtractHonorsWhiteout(t *testing.T) {
	layer1 := tarOf(t, map[string]string{"deleteme.txt": "gone soon"})
	layer2 := tarOf(t, map[string]string{".wh.deleteme.txt": ""})
	v := newFakeView(t, [][]byte{layer1, layer2})

	dir := t.TempDir()
	require.NoError(t, Extract(context.Background(), dir, v))

	_, err := os.Stat(filepath.Join(dir, "deleteme.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestExtractGunzipsCompressedLayers(t *testing.T) {
	raw := tarOf(t, map[string]string{"a.txt": "hello"})
	gz := gzipBytesForTest(t, raw)
	v := newFakeView(t, [][]byte{gz})

	dir := t.TempDir()
	require.NoError(t, Extract(context.Background(), dir, v))

	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}
