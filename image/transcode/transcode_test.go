package transcode

import (
	"context"
	"encoding/json"
	"testing"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

type fakeView struct {
	mediaType string
	raw       []byte
	cfg       []byte
	layers    []image.BlobInfo
	blobs     map[digest.Digest][]byte
}

func (f *fakeView) MediaType() string                          { return f.mediaType }
func (f *fakeView) Manifest() ([]byte, error)                  { return f.raw, nil }
func (f *fakeView) ManifestDigest() (digest.Digest, error)     { return digest.FromBytes(f.raw), nil }
func (f *fakeView) ConfigBlob(ctx context.Context) ([]byte, error) { return f.cfg, nil }
func (f *fakeView) LayerInfos() []image.BlobInfo               { return f.layers }
func (f *fakeView) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return f.blobs[info.Digest], nil
}
func (f *fakeView) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(f.cfg, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSchema22View(t *testing.T) *fakeView {
	l1 := []byte("layer one")
	d1 := digest.FromBytes(l1)
	cfg := manifest.Schema2Config{
		Architecture: "amd64",
		OS:           "linux",
		RootFS:       manifest.Schema2RootFS{Type: "layers", DiffIDs: []digest.Digest{d1}},
		History:      []manifest.Schema2History{{CreatedBy: "FROM scratch"}},
		Config:       &manifest.ContainerConfig{Cmd: []string{"/bin/sh"}},
	}
	cfgBlob, err := json.Marshal(cfg)
	require.NoError(t, err)

	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(cfgBlob),
			Size:      int64(len(cfgBlob)),
		},
		Layers: []imgspecv1.Descriptor{
			{MediaType: manifest.DockerV2Schema2LayerMediaType, Digest: d1, Size: int64(len(l1))},
		},
	}
	raw, err := m.Serialize()
	require.NoError(t, err)

	return &fakeView{
		mediaType: m.MediaType,
		raw:       raw,
		cfg:       cfgBlob,
		layers:    []image.BlobInfo{{Digest: d1, Size: int64(len(l1)), MediaType: manifest.DockerV2Schema2LayerMediaType}},
		blobs:     map[digest.Digest][]byte{d1: l1},
	}
}

func TestOCIRoundTripsThroughV22(t *testing.T) {
	v22 := newSchema22View(t)
	oci, err := OCIFromV22(v22)
	require.NoError(t, err)
	require.Equal(t, manifest.OCI1MediaType, oci.MediaType())

	back, err := V22FromOCI(oci)
	require.NoError(t, err)
	require.Equal(t, manifest.DockerV2Schema2MediaType, back.MediaType())

	cfg, err := back.ConfigBlob(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, string(v22.cfg), string(cfg))
}

func TestV22FromV2SynthesizesConfig(t *testing.T) {
	l1 := []byte("root layer")
	l2 := []byte("top layer")
	d1, d2 := digest.FromBytes(l1), digest.FromBytes(l2)

	rootV1 := manifest.V1Compatibility{ID: "root-id"}
	topV1 := manifest.V1Compatibility{
		ID: "top-id", Parent: "root-id",
		Architecture: "amd64", OS: "linux",
		Config: &manifest.ContainerConfig{Cmd: []string{"/bin/sh"}},
	}
	s1 := &manifest.Schema1{
		Name: "library/test", Tag: "latest", SchemaVersion: 1,
		FSLayers: []manifest.Schema1FSLayer{{BlobSum: d2}, {BlobSum: d1}}, // topmost first
	}
	for _, v1 := range []manifest.V1Compatibility{topV1, rootV1} {
		raw, err := json.Marshal(v1)
		require.NoError(t, err)
		s1.History = append(s1.History, manifest.Schema1History{V1Compatibility: string(raw)})
	}
	raw, err := json.Marshal(s1)
	require.NoError(t, err)

	base := &fakeView{
		mediaType: manifest.DockerV2Schema1MediaType,
		raw:       raw,
		layers:    []image.BlobInfo{{Digest: d1, Size: int64(len(l1))}, {Digest: d2, Size: int64(len(l2))}},
		blobs:     map[digest.Digest][]byte{d1: l1, d2: l2},
	}

	v, err := V22FromV2(context.Background(), base)
	require.NoError(t, err)
	require.Equal(t, manifest.DockerV2Schema2MediaType, v.MediaType())

	cfgBlob, err := v.ConfigBlob(context.Background())
	require.NoError(t, err)
	var cfg manifest.Schema2Config
	require.NoError(t, json.Unmarshal(cfgBlob, &cfg))
	require.Equal(t, "amd64", cfg.Architecture)
	require.Len(t, cfg.RootFS.DiffIDs, 2)
	require.NotEmpty(t, cfg.DockerVersion)
}

func TestV2FromV22ReconstructsChainIDs(t *testing.T) {
	v22 := newSchema22View(t)
	s1, err := V2FromV22(context.Background(), v22, v22, "library/test", "latest")
	require.NoError(t, err)
	require.Equal(t, 1, s1.SchemaVersion)
	require.Len(t, s1.FSLayers, 1)
	require.Len(t, s1.History, 1)

	require.NoError(t, s1.ValidateV1IDs())

	v1s, err := s1.V1Compatibilities()
	require.NoError(t, err)
	require.Equal(t, "amd64", v1s[0].Architecture)
}

func TestV2FromV22HandlesEmptyLayerHistory(t *testing.T) {
	l1 := []byte("real layer")
	d1 := digest.FromBytes(l1)
	cfg := manifest.Schema2Config{
		Architecture: "amd64",
		OS:           "linux",
		RootFS:       manifest.Schema2RootFS{Type: "layers", DiffIDs: []digest.Digest{d1}},
		History: []manifest.Schema2History{
			{CreatedBy: "FROM scratch"},
			{CreatedBy: "ENV FOO=bar", EmptyLayer: true},
		},
		Config: &manifest.ContainerConfig{Cmd: []string{"/bin/sh"}},
	}
	cfgBlob, err := json.Marshal(cfg)
	require.NoError(t, err)

	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(cfgBlob),
			Size:      int64(len(cfgBlob)),
		},
		Layers: []imgspecv1.Descriptor{
			{MediaType: manifest.DockerV2Schema2LayerMediaType, Digest: d1, Size: int64(len(l1))},
		},
	}
	raw, err := m.Serialize()
	require.NoError(t, err)

	v22 := &fakeView{
		mediaType: m.MediaType,
		raw:       raw,
		cfg:       cfgBlob,
		layers:    []image.BlobInfo{{Digest: d1, Size: int64(len(l1)), MediaType: manifest.DockerV2Schema2LayerMediaType}},
		blobs:     map[digest.Digest][]byte{d1: l1},
	}

	s1, err := V2FromV22(context.Background(), v22, v22, "library/test", "latest")
	require.NoError(t, err)
	// Two history entries but only one real layer: the empty_layer entry
	// must not consume a second blob off base.LayerInfos().
	require.Len(t, s1.History, 2)
	require.Len(t, s1.FSLayers, 2)
	require.Equal(t, digest.EmptyTarDigest, s1.FSLayers[0].BlobSum) // topmost first, empty_layer is last/top
	require.Equal(t, d1, s1.FSLayers[1].BlobSum)

	require.NoError(t, s1.ValidateV1IDs())

	v1s, err := s1.V1Compatibilities()
	require.NoError(t, err)
	require.True(t, v1s[0].ThrowAway)
}

func TestSignSchema1AttachesSignatures(t *testing.T) {
	s1 := &manifest.Schema1{
		Name: "library/test", Tag: "latest", SchemaVersion: 1,
		FSLayers: []manifest.Schema1FSLayer{{BlobSum: digest.FromBytes([]byte("x"))}},
		History:  []manifest.Schema1History{{V1Compatibility: `{"id":"a"}`}},
	}
	signed, err := SignSchema1(s1)
	require.NoError(t, err)
	require.NotEmpty(t, signed.Signatures)
	require.Empty(t, s1.Signatures) // original untouched
}
