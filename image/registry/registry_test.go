package registry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/google/containerregistry/image/transport"
	"github.com/google/containerregistry/manifest"
)

type fakeOracle struct {
	manifests map[string]struct {
		body        []byte
		contentType string
	}
	blobs map[string][]byte
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		manifests: map[string]struct {
			body        []byte
			contentType string
		}{},
		blobs: map[string][]byte{},
	}
}

func (f *fakeOracle) GetManifest(ctx context.Context, ref string, accept []string) ([]byte, string, error) {
	m, ok := f.manifests[ref]
	if !ok {
		return nil, "", errors.Wrapf(transport.ErrNotFound, "manifest %s", ref)
	}
	return m.body, m.contentType, nil
}

// erroringOracle.GetManifest always fails with a non-404 transport error,
// for TestExistsPropagatesNon404Errors.
type erroringOracle struct{ fakeOracle }

func (f *erroringOracle) GetManifest(ctx context.Context, ref string, accept []string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("connection reset by peer")
}

func (f *fakeOracle) GetBlob(ctx context.Context, d string) (io.ReadCloser, error) {
	b, ok := f.blobs[d]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", d)
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (f *fakeOracle) HeadBlob(ctx context.Context, d string) (bool, int64, error) {
	b, ok := f.blobs[d]
	if !ok {
		return false, -1, nil
	}
	return true, int64(len(b)), nil
}

// Catalog serves two pages, so that Source.Catalog has to follow the
// "next" cursor to see both repositories.
func (f *fakeOracle) Catalog(ctx context.Context, last string, limit int) ([]string, string, error) {
	if last == "" {
		return []string{"repo/a"}, "repo/a", nil
	}
	return []string{"repo/b"}, "", nil
}

func TestFromRegistrySchema2(t *testing.T) {
	oracle := newFakeOracle()
	configBlob := []byte(`{"architecture":"amd64","os":"linux","rootfs":{"type":"layers","diff_ids":[]}}`)
	configDigest := digest.FromBytes(configBlob)
	oracle.blobs[configDigest.String()] = configBlob

	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config:        imgspecv1.Descriptor{MediaType: manifest.DockerV2Schema2ConfigMediaType, Digest: configDigest, Size: int64(len(configBlob))},
	}
	body, err := m.Serialize()
	require.NoError(t, err)
	oracle.manifests["latest"] = struct {
		body        []byte
		contentType string
	}{body: body, contentType: manifest.DockerV2Schema2MediaType}

	src := New(oracle)
	view, err := src.FromRegistry(context.Background(), "latest")
	require.NoError(t, err)
	require.Equal(t, manifest.DockerV2Schema2MediaType, view.MediaType())

	cfg, err := view.ConfigBlob(context.Background())
	require.NoError(t, err)
	require.Equal(t, configBlob, cfg)
}

func TestFromRegistryByDigestVerifies(t *testing.T) {
	oracle := newFakeOracle()
	m := &manifest.Schema2{SchemaVersion: 2, MediaType: manifest.DockerV2Schema2MediaType}
	body, err := m.Serialize()
	require.NoError(t, err)
	realDigest := digest.FromBytes(body).String()
	oracle.manifests[realDigest] = struct {
		body        []byte
		contentType string
	}{body: body, contentType: manifest.DockerV2Schema2MediaType}

	src := New(oracle)
	_, err = src.FromRegistry(context.Background(), realDigest)
	require.NoError(t, err)

	wrongDigest := "sha256:" + strings.Repeat("0", 64)
	oracle.manifests[wrongDigest] = struct {
		body        []byte
		contentType string
	}{body: body, contentType: manifest.DockerV2Schema2MediaType}
	_, err = src.FromRegistry(context.Background(), wrongDigest)
	require.Error(t, err)
}

func TestFromRegistryRejectsMalformedBody(t *testing.T) {
	oracle := newFakeOracle()
	oracle.manifests["broken"] = struct {
		body        []byte
		contentType string
	}{body: []byte("not json"), contentType: "application/json"}

	src := New(oracle)
	_, err := src.FromRegistry(context.Background(), "broken")
	require.Error(t, err)
}

func TestExistsTrueForWellFormedManifest(t *testing.T) {
	oracle := newFakeOracle()
	m := &manifest.Schema2{SchemaVersion: 2, MediaType: manifest.DockerV2Schema2MediaType}
	body, err := m.Serialize()
	require.NoError(t, err)
	oracle.manifests["latest"] = struct {
		body        []byte
		contentType string
	}{body: body, contentType: manifest.DockerV2Schema2MediaType}

	src := New(oracle)
	ok, err := src.Exists(context.Background(), "latest")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExistsFalseOn404(t *testing.T) {
	oracle := newFakeOracle()
	src := New(oracle)
	ok, err := src.Exists(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistsPropagatesNon404Errors(t *testing.T) {
	src := New(&erroringOracle{})
	_, err := src.Exists(context.Background(), "latest")
	require.Error(t, err)
}

func TestExistsErrorsOnMalformedBody(t *testing.T) {
	oracle := newFakeOracle()
	oracle.manifests["broken"] = struct {
		body        []byte
		contentType string
	}{body: []byte("not json"), contentType: "application/json"}

	src := New(oracle)
	_, err := src.Exists(context.Background(), "broken")
	require.Error(t, err)
}

func TestCatalogPaginates(t *testing.T) {
	oracle := newFakeOracle()
	src := New(oracle)
	repos, err := src.Catalog(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"repo/a", "repo/b"}, repos)
}
