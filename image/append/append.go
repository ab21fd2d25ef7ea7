// Package append implements Append (§4.9): wrapping a base image.View
// with one additional layer on top, without touching any blob the base
// already owns. Grounded on
// original_source/client/v2_2/append_.py's Layer class, including its
// empty-layer special case for a history entry with no real tar content.
package append

import (
	"context"
	"encoding/json"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// Layer is the new top layer to append: either real gzipped tar content,
// or nil/empty to record a history-only "empty_layer" entry (e.g. an
// ENV or LABEL instruction that changes no files), matching
// append_.py's cfg['empty_layer'] = 'true' branch.
type Layer struct {
	GzipBytes []byte // nil means "empty layer"
	History   manifest.Schema2History
}

// View wraps a base image.View with one appended Layer.
type View struct {
	base  image.View
	layer Layer

	layerDigest digest.Digest
	diffID      digest.Digest
	isEmpty     bool

	configBlob []byte
	rawManifest []byte
}

// Append builds the wrapped View. base must already be a v2.2/OCI-shaped
// view (Schema2Config): schema1 bases have no single config object to
// extend and must be transcoded first via image/transcode.
func Append(ctx context.Context, base image.View, baseCfg interface{ Schema2Config(context.Context) (*manifest.Schema2Config, error) }, layer Layer) (*View, error) {
	v := &View{base: base, layer: layer}
	if len(layer.GzipBytes) == 0 {
		v.isEmpty = true
		v.layerDigest = digest.EmptyTarDigest
		v.diffID = digest.FromBytes(emptyTarBytes())
	} else {
		v.layerDigest = digest.FromBytes(layer.GzipBytes)
		diffID, err := digest.DiffID(layer.GzipBytes)
		if err != nil {
			return nil, errors.Wrap(err, "computing appended layer diff_id")
		}
		v.diffID = diffID
	}

	cfg, err := baseCfg.Schema2Config(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading base config")
	}
	newCfg := *cfg
	newCfg.RootFS.DiffIDs = append([]digest.Digest{}, cfg.RootFS.DiffIDs...)
	if !v.isEmpty {
		newCfg.RootFS.DiffIDs = append(newCfg.RootFS.DiffIDs, v.diffID)
	}
	h := layer.History
	h.EmptyLayer = v.isEmpty
	newCfg.History = append(append([]manifest.Schema2History{}, cfg.History...), h)

	configBlob, err := json.Marshal(newCfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling appended config")
	}
	v.configBlob = configBlob

	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(configBlob),
			Size:      int64(len(configBlob)),
		},
	}
	for _, l := range base.LayerInfos() {
		m.Layers = append(m.Layers, imgspecv1.Descriptor{MediaType: l.MediaType, Digest: l.Digest, Size: l.Size})
	}
	if !v.isEmpty {
		m.Layers = append(m.Layers, imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2LayerMediaType,
			Digest:    v.layerDigest,
			Size:      int64(len(layer.GzipBytes)),
		})
	}
	raw, err := m.Serialize()
	if err != nil {
		return nil, err
	}
	v.rawManifest = raw
	return v, nil
}

func emptyTarBytes() []byte {
	raw, _ := digest.Gunzip(digest.EmptyTarGzipBytes)
	return raw
}

func (v *View) MediaType() string                { return manifest.DockerV2Schema2MediaType }
func (v *View) Manifest() ([]byte, error)        { return v.rawManifest, nil }
func (v *View) ManifestDigest() (digest.Digest, error) {
	return digest.FromBytes(v.rawManifest), nil
}
func (v *View) ConfigBlob(ctx context.Context) ([]byte, error) { return v.configBlob, nil }

func (v *View) LayerInfos() []image.BlobInfo {
	out := append([]image.BlobInfo{}, v.base.LayerInfos()...)
	if !v.isEmpty {
		out = append(out, image.BlobInfo{Digest: v.layerDigest, Size: int64(len(v.layer.GzipBytes)), MediaType: manifest.DockerV2Schema2LayerMediaType})
	}
	return out
}

func (v *View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	if info.Digest == v.layerDigest && !v.isEmpty {
		return v.layer.GzipBytes, nil
	}
	if info.Digest == digest.EmptyTarDigest {
		return digest.EmptyTarGzipBytes, nil
	}
	return v.base.Blob(ctx, info)
}
