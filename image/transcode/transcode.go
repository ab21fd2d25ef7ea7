// Package transcode implements the four compatibility shims of §4.10:
// schema1 (the original registry v2 API's manifest format, called "v2"
// in the original Python client) to/from schema2.2, and schema2.2 to/from
// OCI (a pure media-type rewrite). Grounded on
// original_source/client/v2_2/v2_compat_.py (schema1<->schema2.2) and
// original_source/client/v2_2/oci_compat_.py (schema2.2<->OCI).
package transcode

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/containers/libtrust"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// OCIFromV22 rewrites a schema2.2 manifest to carry OCI media types. Per
// §4.10 no blob is touched; Blob/ConfigBlob delegate straight to base.
func OCIFromV22(base image.View) (image.View, error) {
	raw, err := base.Manifest()
	if err != nil {
		return nil, err
	}
	m, err := manifest.UnmarshalSchema2(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema2.2 manifest")
	}
	return &rewrittenView{base: base, m: m.ToOCI()}, nil
}

// V22FromOCI is the inverse of OCIFromV22.
func V22FromOCI(base image.View) (image.View, error) {
	raw, err := base.Manifest()
	if err != nil {
		return nil, err
	}
	m, err := manifest.UnmarshalSchema2(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing OCI manifest")
	}
	return &rewrittenView{base: base, m: m.ToDockerV22()}, nil
}

// rewrittenView reuses base for ConfigBlob/Blob and only replaces the
// manifest bytes and media types, matching oci_compat_.py's observation
// that the OCI pair is "a copy of the manifest; no blobs change".
type rewrittenView struct {
	base image.View
	m    *manifest.Schema2
	raw  []byte
}

func (v *rewrittenView) MediaType() string { return v.m.MediaType }
func (v *rewrittenView) Manifest() ([]byte, error) {
	if v.raw == nil {
		raw, err := v.m.Serialize()
		if err != nil {
			return nil, err
		}
		v.raw = raw
	}
	return v.raw, nil
}
func (v *rewrittenView) ManifestDigest() (digest.Digest, error) {
	raw, err := v.Manifest()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(raw), nil
}
func (v *rewrittenView) ConfigBlob(ctx context.Context) ([]byte, error) { return v.base.ConfigBlob(ctx) }
func (v *rewrittenView) LayerInfos() []image.BlobInfo                  { return v.base.LayerInfos() }
func (v *rewrittenView) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return v.base.Blob(ctx, info)
}

// schema2ConfigSource is the minimal capability V22FromV2/V2FromV22 need
// from a base view beyond image.View.
type schema2ConfigSource interface {
	Schema2Config(ctx context.Context) (*manifest.Schema2Config, error)
}

// V22FromV2 builds a schema2.2 manifest+config from a schema1 view,
// matching v2_compat_.py's V22FromV2._ProcessImage: the config is
// synthesized from the embedded v1Compatibility history rather than
// fetched, since schema1 has no separate config object.
func V22FromV2(ctx context.Context, base image.View) (image.View, error) {
	raw, err := base.Manifest()
	if err != nil {
		return nil, err
	}
	s1, err := manifest.UnmarshalSchema1(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema1 manifest")
	}
	v1s, err := s1.V1Compatibilities()
	if err != nil {
		return nil, err
	}
	// s1.History/FSLayers/v1s are topmost-first; ConfigFromV1History
	// expects root-first, so reverse before building the config.
	reversedV1s := make([]manifest.V1Compatibility, len(v1s))
	for i, v1 := range v1s {
		reversedV1s[len(v1s)-1-i] = v1
	}

	layers := base.LayerInfos() // already root-first, per image.View's contract
	diffIDs := make([]digest.Digest, len(layers))
	for i, l := range layers {
		blob, err := base.Blob(ctx, l)
		if err != nil {
			return nil, errors.Wrapf(err, "fetching layer %s", l.Digest)
		}
		diffID, err := digest.DiffID(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "computing diff_id for layer %s", l.Digest)
		}
		diffIDs[i] = diffID
	}

	cfg := manifest.ConfigFromV1History(reversedV1s, diffIDs)
	cfg.DockerVersion = defaultDockerVersion(cfg.DockerVersion)
	configBlob, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	m := &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(configBlob),
			Size:      int64(len(configBlob)),
		},
	}
	for _, l := range layers {
		m.Layers = append(m.Layers, imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2LayerMediaType,
			Digest:    l.Digest,
			Size:      l.Size,
		})
	}
	rawOut, err := m.Serialize()
	if err != nil {
		return nil, err
	}
	return &syntheticSchema2View{base: base, m: m, raw: rawOut, configBlob: configBlob}, nil
}

type syntheticSchema2View struct {
	base       image.View
	m          *manifest.Schema2
	raw        []byte
	configBlob []byte
}

func (v *syntheticSchema2View) MediaType() string                  { return v.m.MediaType }
func (v *syntheticSchema2View) Manifest() ([]byte, error)          { return v.raw, nil }
func (v *syntheticSchema2View) ManifestDigest() (digest.Digest, error) {
	return digest.FromBytes(v.raw), nil
}
func (v *syntheticSchema2View) ConfigBlob(ctx context.Context) ([]byte, error) {
	return v.configBlob, nil
}
func (v *syntheticSchema2View) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(v.configBlob, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
func (v *syntheticSchema2View) LayerInfos() []image.BlobInfo { return v.base.LayerInfos() }
func (v *syntheticSchema2View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	return v.base.Blob(ctx, info)
}

// V2FromV22 is the hard direction: reconstructing a signed, ancestry-
// chained schema1 manifest from a schema2.2 view. Grounded on
// v2_compat_.py's V2FromV22._ProcessImage, _GenerateV1LayerId,
// _BuildV1Compatibility, and _BuildV1CompatibilityForTopLayer.
func V2FromV22(ctx context.Context, base image.View, cfgSrc schema2ConfigSource, repoName, tag string) (*manifest.Schema1, error) {
	cfg, err := cfgSrc.Schema2Config(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading v2.2 config")
	}
	layers := base.LayerInfos() // root-first
	n := len(cfg.History)
	if n == 0 {
		return nil, errors.New("config has no history entries")
	}

	// This loop implements _GenerateV1LayerId: sha256(hex(digest) + " "
	// + parent [+ " " + raw_config if this is the topmost layer]), and
	// _GetSchema1LayerDigest's pointer walk: an empty_layer history entry
	// consumes no real layer and uses the canonical empty-tar digest
	// instead, without advancing layerPtr.
	ids := make([]string, n)
	digests := make([]digest.Digest, n)
	parent := ""
	layerPtr := 0
	for i := 0; i < n; i++ {
		if cfg.History[i].EmptyLayer {
			digests[i] = digest.EmptyTarDigest
		} else {
			if layerPtr >= len(layers) {
				return nil, errors.Errorf("history entry %d references a layer beyond the %d available", i, len(layers))
			}
			digests[i] = layers[layerPtr].Digest
			layerPtr++
		}

		input := digests[i].Encoded() + " " + parent
		if i == n-1 {
			rawCfg, err := base.ConfigBlob(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "reading raw v2.2 config")
			}
			input += " " + string(rawCfg)
		}
		ids[i] = digest.FromBytes([]byte(input)).Encoded()
		parent = ids[i]
	}
	if layerPtr != len(layers) {
		return nil, errors.Errorf("history accounts for %d real layers, but manifest has %d", layerPtr, len(layers))
	}

	s1 := &manifest.Schema1{
		Name:          repoName,
		Tag:           tag,
		Architecture:  cfg.Architecture,
		SchemaVersion: 1,
	}
	// Schema1 lists fsLayers/history topmost-first: walk history in
	// reverse so index 0 is the top layer.
	for i := n - 1; i >= 0; i-- {
		s1.FSLayers = append(s1.FSLayers, manifest.Schema1FSLayer{BlobSum: digests[i]})
		v1 := v1CompatibilityForLayer(cfg, i, ids, n)
		raw, err := json.Marshal(v1)
		if err != nil {
			return nil, err
		}
		s1.History = append(s1.History, manifest.Schema1History{V1Compatibility: string(raw)})
	}
	return s1, nil
}

func v1CompatibilityForLayer(cfg *manifest.Schema2Config, i int, ids []string, n int) manifest.V1Compatibility {
	h := cfg.History[i]
	v1 := manifest.V1Compatibility{
		ID:        ids[i],
		Created:   h.Created,
		Author:    h.Author,
		Comment:   h.Comment,
		ThrowAway: h.EmptyLayer,
	}
	if i > 0 {
		v1.Parent = ids[i-1]
	}
	if i == n-1 {
		// _BuildV1CompatibilityForTopLayer: the topmost layer also
		// carries the full image-level fields.
		v1.Architecture = cfg.Architecture
		v1.OS = cfg.OS
		v1.DockerVersion = cfg.DockerVersion
		v1.Container = cfg.Container
		v1.Config = cfg.Config
		v1.ContainerConfig = cfg.ContainerConfig
	} else {
		v1.ContainerConfig = &manifest.ContainerConfig{Cmd: []string{h.CreatedBy}}
	}
	return v1
}

// SignSchema1 wraps m in a libtrust JWS detached-signature envelope,
// matching docker/distribution's historical schema1 signing (the same
// library the teacher repo's go.mod carries for this purpose). The
// payload bytes being signed are m's own canonical JSON rather than the
// caller's bytes, keeping signature and content coupled by construction.
func SignSchema1(m *manifest.Schema1) (*manifest.Schema1, error) {
	payload, err := manifest.Canonical(m)
	if err != nil {
		return nil, err
	}
	key, err := libtrust.GenerateECP256PrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating signing key")
	}
	js, err := libtrust.NewJSONSignature(payload)
	if err != nil {
		return nil, errors.Wrap(err, "building JSON signature")
	}
	if err := js.Sign(key); err != nil {
		return nil, errors.Wrap(err, "signing manifest")
	}
	pretty, err := js.PrettySignature("signatures")
	if err != nil {
		return nil, errors.Wrap(err, "rendering pretty signature")
	}
	var withSig struct {
		Signatures []manifest.Schema1Signature `json:"signatures"`
	}
	if err := json.Unmarshal(pretty, &withSig); err != nil {
		return nil, errors.Wrap(err, "parsing rendered signature")
	}
	signed := *m
	signed.Signatures = withSig.Signatures
	return &signed, nil
}

// dockerVersionFallback is used when a synthesized config carries no
// docker_version (e.g. a disk-assembled image that never went through a
// real docker build), matching v2_compat_.py's use of a fixed version
// string rather than leaving the field empty.
const dockerVersionFallback = "containerregistry-transcode"

func defaultDockerVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return dockerVersionFallback
	}
	return v
}
