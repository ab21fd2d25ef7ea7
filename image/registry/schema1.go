package registry

import (
	"context"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// schema1View backs the v1 ancestry-chained, signed manifest format.
// Unlike schema2View it has no separate config object: ConfigBlob
// returns nil, matching the teacher's manifestSchema1 (which has no
// ConfigBlob method at all — types.Image degrades gracefully when the
// format has no such object). Grounded on the teacher's
// image/docker_schema1.go.
type schema1View struct {
	src *Source
	raw []byte
	m   *manifest.Schema1
}

func (v *schema1View) MediaType() string {
	if len(v.m.Signatures) > 0 {
		return manifest.DockerV2Schema1SignedMediaType
	}
	return manifest.DockerV2Schema1MediaType
}

func (v *schema1View) Manifest() ([]byte, error) { return v.raw, nil }

func (v *schema1View) ManifestDigest() (digest.Digest, error) {
	unsigned, err := v.m.UnsignedPayload()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(unsigned), nil
}

func (v *schema1View) ConfigBlob(ctx context.Context) ([]byte, error) { return nil, nil }

// LayerInfos returns layers root-first: schema1's wire order is topmost
// first, so this reverses v.m.FSLayers, matching every other format's
// View.LayerInfos contract.
func (v *schema1View) LayerInfos() []image.BlobInfo {
	out := make([]image.BlobInfo, len(v.m.FSLayers))
	n := len(v.m.FSLayers)
	for i, l := range v.m.FSLayers {
		out[n-1-i] = image.BlobInfo{Digest: l.BlobSum, Size: -1}
	}
	return out
}

func (v *schema1View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return fetchBlob(ctx, v.src.Oracle, info.Digest)
}
