package append

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

type fakeBase struct {
	layers []image.BlobInfo
	blobs  map[digest.Digest][]byte
	cfg    manifest.Schema2Config
}

func (f *fakeBase) MediaType() string             { return manifest.DockerV2Schema2MediaType }
func (f *fakeBase) Manifest() ([]byte, error)     { return []byte("{}"), nil }
func (f *fakeBase) ManifestDigest() (digest.Digest, error) {
	return digest.FromBytes([]byte("{}")), nil
}
func (f *fakeBase) ConfigBlob(ctx context.Context) ([]byte, error) {
	return json.Marshal(f.cfg)
}
func (f *fakeBase) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := f.cfg
	return &cfg, nil
}
func (f *fakeBase) LayerInfos() []image.BlobInfo { return f.layers }
func (f *fakeBase) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return f.blobs[info.Digest], nil
}

func gzipBytes(raw []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func newFakeBase(t *testing.T) *fakeBase {
	l1 := gzipBytes([]byte("base layer"))
	d1 := digest.FromBytes(l1)
	diffID, err := digest.DiffID(l1)
	require.NoError(t, err)
	return &fakeBase{
		layers: []image.BlobInfo{{Digest: d1, Size: int64(len(l1))}},
		blobs:  map[digest.Digest][]byte{d1: l1},
		cfg: manifest.Schema2Config{
			Architecture: "amd64",
			OS:           "linux",
			RootFS:       manifest.Schema2RootFS{Type: "layers", DiffIDs: []digest.Digest{diffID}},
			History:      []manifest.Schema2History{{CreatedBy: "base"}},
		},
	}
}

func TestAppendRealLayer(t *testing.T) {
	base := newFakeBase(t)
	newLayer := gzipBytes([]byte("new layer content"))
	v, err := Append(context.Background(), base, base, Layer{GzipBytes: newLayer, History: manifest.Schema2History{CreatedBy: "add layer"}})
	require.NoError(t, err)

	layers := v.LayerInfos()
	require.Len(t, layers, 2)
	require.Equal(t, digest.FromBytes(newLayer), layers[1].Digest)

	blob, err := v.Blob(context.Background(), layers[1])
	require.NoError(t, err)
	require.Equal(t, newLayer, blob)

	cfgBlob, err := v.ConfigBlob(context.Background())
	require.NoError(t, err)
	var cfg manifest.Schema2Config
	require.NoError(t, json.Unmarshal(cfgBlob, &cfg))
	require.Len(t, cfg.RootFS.DiffIDs, 2)
	require.Len(t, cfg.History, 2)
	require.False(t, cfg.History[1].EmptyLayer)
}

func TestAppendEmptyLayer(t *testing.T) {
	base := newFakeBase(t)
	v, err := Append(context.Background(), base, base, Layer{History: manifest.Schema2History{CreatedBy: "ENV FOO=bar"}})
	require.NoError(t, err)

	require.Len(t, v.LayerInfos(), 1) // empty layer adds no blob entry

	blob, err := v.Blob(context.Background(), image.BlobInfo{Digest: digest.EmptyTarDigest})
	require.NoError(t, err)
	require.Equal(t, digest.EmptyTarGzipBytes, blob)
	require.Equal(t, digest.Digest("sha256:a3ed95caeb02ffe68cdd9fd84406680ae93d633cb16422d00e8a7c22955b46d4"), digest.EmptyTarDigest)

	cfgBlob, err := v.ConfigBlob(context.Background())
	require.NoError(t, err)
	var cfg manifest.Schema2Config
	require.NoError(t, json.Unmarshal(cfgBlob, &cfg))
	require.Len(t, cfg.History, 2)
	require.True(t, cfg.History[1].EmptyLayer)
}
