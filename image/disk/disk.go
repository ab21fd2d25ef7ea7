// Package disk implements FromDisk (§4.8): reading a config file plus an
// ordered list of (digest_file, content_file) layer pairs as an
// image.View, without requiring any archive format at all. Grounded on
// original_source/client/v2_2/docker_image_.py's FromDisk, which accepts
// exactly this shape plus an optional legacy_base tarball for layers
// that predate the image being assembled.
package disk

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// LayerFiles names, for one layer, the file holding its precomputed
// digest (the bare hex digest, no "sha256:" prefix, matching the
// original's `layer_name = 'sha256:' + reader.read()` convention) and
// the file holding its gzipped content.
type LayerFiles struct {
	DigestFile  string
	ContentFile string
}

// LegacyBase is an optional older image whose layers precede the ones
// FromDisk lists, letting a caller assemble a new topmost layer on top
// of an existing tarball-backed image without re-reading its bytes
// until Blob is actually called for one of its layers.
type LegacyBase interface {
	LayerInfos() []image.BlobInfo
	Blob(ctx context.Context, info image.BlobInfo) ([]byte, error)
}

// View reads its config from a file and its layers from a list of
// (digest file, content file) pairs. FromDisk reads the config file and
// every digest file and stats every content file up front, so
// ConfigBlob and LayerInfos answer from memory; only the layer contents
// are read later, on each Blob call.
type View struct {
	configPath string
	layers     []LayerFiles
	base       LegacyBase

	configBlob []byte
	layerInfos []image.BlobInfo
}

// FromDisk builds a View over a JSON config file and an ordered slice of
// layer file pairs (root layer first). legacyBase may be nil.
func FromDisk(configPath string, layers []LayerFiles, legacyBase LegacyBase) (*View, error) {
	configBlob, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	v := &View{configPath: configPath, layers: layers, base: legacyBase, configBlob: configBlob}

	if legacyBase != nil {
		v.layerInfos = append(v.layerInfos, legacyBase.LayerInfos()...)
	}
	for _, lf := range layers {
		raw, err := os.ReadFile(lf.DigestFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading digest file %s", lf.DigestFile)
		}
		d, err := digest.Parse("sha256:" + strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing digest file %s", lf.DigestFile)
		}
		st, err := os.Stat(lf.ContentFile)
		if err != nil {
			return nil, errors.Wrapf(err, "stat content file %s", lf.ContentFile)
		}
		v.layerInfos = append(v.layerInfos, image.BlobInfo{
			Digest:    d,
			Size:      st.Size(),
			MediaType: manifest.DockerV2Schema2LayerMediaType,
		})
	}
	return v, nil
}

func (v *View) MediaType() string { return manifest.DockerV2Schema2MediaType }

func (v *View) ConfigBlob(ctx context.Context) ([]byte, error) { return v.configBlob, nil }

func (v *View) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(v.configBlob, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing on-disk config")
	}
	return cfg, nil
}

func (v *View) LayerInfos() []image.BlobInfo { return v.layerInfos }

func (v *View) Manifest() ([]byte, error) {
	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(v.configBlob),
			Size:      int64(len(v.configBlob)),
		},
	}
	for _, l := range v.layerInfos {
		m.Layers = append(m.Layers, imgspecv1.Descriptor{MediaType: l.MediaType, Digest: l.Digest, Size: l.Size})
	}
	return m.Serialize()
}

func (v *View) ManifestDigest() (digest.Digest, error) {
	raw, err := v.Manifest()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(raw), nil
}

// Blob returns the content for a layer by digest, reading from the
// legacy base when info matches one of its layers, otherwise from the
// matching on-disk content file.
func (v *View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	if v.base != nil {
		for _, bi := range v.base.LayerInfos() {
			if bi.Digest == info.Digest {
				return v.base.Blob(ctx, info)
			}
		}
	}
	for i, lf := range v.layers {
		offset := 0
		if v.base != nil {
			offset = len(v.base.LayerInfos())
		}
		if offset+i >= len(v.layerInfos) {
			break
		}
		if v.layerInfos[offset+i].Digest == info.Digest {
			return os.ReadFile(lf.ContentFile)
		}
	}
	return nil, errors.Errorf("blob %s not found among on-disk layers", info.Digest)
}
