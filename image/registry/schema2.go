package registry

import (
	"context"
	"encoding/json"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// schema2View backs both v2.2 and OCI manifests: per §4.10 the two
// differ only in mediaType strings, so one struct serves both, exactly
// as manifest.Schema2 does on the wire side. Grounded on the teacher's
// manifestSchema2/manifestOCI1's shared lazy-config-download shape.
type schema2View struct {
	src        *Source
	raw        []byte
	m          *manifest.Schema2
	configBlob []byte // cached after first ConfigBlob call
}

func (v *schema2View) MediaType() string { return v.m.MediaType }

func (v *schema2View) Manifest() ([]byte, error) { return v.raw, nil }

func (v *schema2View) ManifestDigest() (digest.Digest, error) {
	return digest.FromBytes(v.raw), nil
}

func (v *schema2View) ConfigBlob(ctx context.Context) ([]byte, error) {
	if v.configBlob == nil {
		blob, err := fetchBlob(ctx, v.src.Oracle, v.m.Config.Digest)
		if err != nil {
			return nil, errors.Wrap(err, "fetching config blob")
		}
		v.configBlob = blob
	}
	return v.configBlob, nil
}

func (v *schema2View) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	blob, err := v.ConfigBlob(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(blob, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config blob")
	}
	return cfg, nil
}

func (v *schema2View) OCIConfig(ctx context.Context) (*imgspecv1.Image, error) {
	blob, err := v.ConfigBlob(ctx)
	if err != nil {
		return nil, err
	}
	out := &imgspecv1.Image{}
	if err := json.Unmarshal(blob, out); err != nil {
		return nil, errors.Wrap(err, "parsing config blob as OCI image config")
	}
	return out, nil
}

func (v *schema2View) LayerInfos() []image.BlobInfo {
	out := make([]image.BlobInfo, len(v.m.Layers))
	for i, l := range v.m.Layers {
		out[i] = image.BlobInfo{Digest: l.Digest, Size: l.Size, MediaType: l.MediaType, URLs: l.URLs}
	}
	return out
}

func (v *schema2View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return fetchBlob(ctx, v.src.Oracle, info.Digest)
}
