package save

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/containerregistry/config"
	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/image/disk"
	"github.com/google/containerregistry/manifest"
)

type fakeView struct {
	configBlob []byte
	layers     []image.BlobInfo
	blobs      map[string][]byte
}

func (f *fakeView) MediaType() string                 { return "" }
func (f *fakeView) Manifest() ([]byte, error)          { return []byte("{}"), nil }
func (f *fakeView) ManifestDigest() (digest.Digest, error) { return digest.FromBytes([]byte("{}")), nil }
func (f *fakeView) ConfigBlob(ctx context.Context) ([]byte, error) { return f.configBlob, nil }
func (f *fakeView) LayerInfos() []image.BlobInfo       { return f.layers }
func (f *fakeView) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return f.blobs[info.Digest.String()], nil
}
func (f *fakeView) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(f.configBlob, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFakeView() *fakeView {
	l1 := []byte("layer one")
	l2 := []byte("layer two")
	d1 := digest.FromBytes(l1)
	d2 := digest.FromBytes(l2)
	return &fakeView{
		configBlob: []byte(`{"architecture":"amd64","os":"linux","rootfs":{"type":"layers","diff_ids":["` + digest.FromBytes(l1).String() + `","` + digest.FromBytes(l2).String() + `"]},"history":[{"created_by":"layer one"},{"created_by":"layer two"}]}`),
		layers: []image.BlobInfo{
			{Digest: d1, Size: int64(len(l1))},
			{Digest: d2, Size: int64(len(l2))},
		},
		blobs: map[string][]byte{d1.String(): l1, d2.String(): l2},
	}
}

func TestV1TarballWritesLegacyLayout(t *testing.T) {
	v := newFakeView()
	var buf bytes.Buffer
	require.NoError(t, V1Tarball(context.Background(), &buf, v, v, "library/test", "latest"))
	require.Greater(t, buf.Len(), 0)
}

func TestTarballWritesManifestJSON(t *testing.T) {
	v := newFakeView()
	var buf bytes.Buffer
	require.NoError(t, Tarball(context.Background(), &buf, v, []string{"repo:tag"}))
	require.Greater(t, buf.Len(), 0)
}

func TestFastOnDiskWritesNumberedPairs(t *testing.T) {
	v := newFakeView()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Save.WorkerPoolSize = 2
	require.NoError(t, FastOnDisk(context.Background(), dir, v, cfg))

	configBytes, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	require.Equal(t, v.configBlob, configBytes)

	for i := range v.layers {
		digestBytes, err := os.ReadFile(filepath.Join(dir, layerName(i, "sha256")))
		require.NoError(t, err)
		require.Equal(t, v.layers[i].Digest.Encoded(), string(digestBytes))

		content, err := os.ReadFile(filepath.Join(dir, layerName(i, "tar.gz")))
		require.NoError(t, err)
		require.Equal(t, v.blobs[v.layers[i].Digest.String()], content)
	}
}

func TestFastOnDiskRoundTripsThroughFromDisk(t *testing.T) {
	v := newFakeView()
	dir := t.TempDir()
	cfg := config.Default()
	require.NoError(t, FastOnDisk(context.Background(), dir, v, cfg))

	var layers []disk.LayerFiles
	for i := range v.layers {
		layers = append(layers, disk.LayerFiles{
			DigestFile:  filepath.Join(dir, layerName(i, "sha256")),
			ContentFile: filepath.Join(dir, layerName(i, "tar.gz")),
		})
	}
	read, err := disk.FromDisk(filepath.Join(dir, "config.json"), layers, nil)
	require.NoError(t, err)

	infos := read.LayerInfos()
	require.Len(t, infos, len(v.layers))
	for i, info := range infos {
		require.Equal(t, v.layers[i].Digest, info.Digest)
		blob, err := read.Blob(context.Background(), info)
		require.NoError(t, err)
		require.Equal(t, v.blobs[v.layers[i].Digest.String()], blob)
	}
}

func TestGzipDeterministic(t *testing.T) {
	cfg := config.Default()
	raw := []byte("hello world")
	a, err := GzipDeterministic(raw, cfg)
	require.NoError(t, err)
	b, err := GzipDeterministic(raw, cfg)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
