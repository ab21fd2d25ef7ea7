package manifest

import (
	"encoding/json"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// Schema2 is the wire shape shared by schema2/2.2 Docker manifests and
// their OCI equivalent: §4.10 establishes that the OCI pair of a v2.2
// manifest is a pure media-type rewrite of the same {config, layers}
// descriptor pair, never a change in blob content or descriptor shape.
// Reusing imgspecv1.Descriptor for Config/Layers means this struct is
// already wire-compatible with an OCI manifest; only MediaType differs.
type Schema2 struct {
	SchemaVersion int                    `json:"schemaVersion"`
	MediaType     string                 `json:"mediaType"`
	Config        imgspecv1.Descriptor   `json:"config"`
	Layers        []imgspecv1.Descriptor `json:"layers"`
}

// UnmarshalSchema2 parses blob as a Schema2 manifest (Docker v2.2 or OCI,
// distinguished only by the MediaType field on return).
func UnmarshalSchema2(blob []byte) (*Schema2, error) {
	s2 := &Schema2{}
	if err := json.Unmarshal(blob, s2); err != nil {
		return nil, errors.Wrap(err, "parsing schema2 manifest")
	}
	if s2.SchemaVersion != 2 {
		return nil, errors.Errorf("unexpected schemaVersion %d in schema2 manifest", s2.SchemaVersion)
	}
	return s2, nil
}

// Serialize returns the canonical (key-sorted) JSON encoding, which is
// what the registry and on-disk layout both hash as the manifest digest.
func (m *Schema2) Serialize() ([]byte, error) {
	return Canonical(m)
}

// IsOCI reports whether m carries OCI media types rather than Docker's.
func (m *Schema2) IsOCI() bool {
	return m.MediaType == OCI1MediaType
}

// ToOCI returns a copy of m with every media type field rewritten to its
// OCI equivalent. No blob is touched: per §4.10 this is purely a
// manifest-level string rewrite.
func (m *Schema2) ToOCI() *Schema2 {
	out := &Schema2{SchemaVersion: m.SchemaVersion, MediaType: OCI1MediaType}
	out.Config = m.Config
	out.Config.MediaType = dockerLayerToOCI(m.Config.MediaType)
	out.Layers = make([]imgspecv1.Descriptor, len(m.Layers))
	for i, l := range m.Layers {
		out.Layers[i] = l
		out.Layers[i].MediaType = dockerLayerToOCI(l.MediaType)
	}
	return out
}

// ToDockerV22 is the inverse of ToOCI.
func (m *Schema2) ToDockerV22() *Schema2 {
	out := &Schema2{SchemaVersion: m.SchemaVersion, MediaType: DockerV2Schema2MediaType}
	out.Config = m.Config
	out.Config.MediaType = ociLayerToDocker(m.Config.MediaType)
	out.Layers = make([]imgspecv1.Descriptor, len(m.Layers))
	for i, l := range m.Layers {
		out.Layers[i] = l
		out.Layers[i].MediaType = ociLayerToDocker(l.MediaType)
	}
	return out
}

// ToOCIManifest converts m (which must already carry OCI media types,
// e.g. via ToOCI) into the image-spec's own imgspecv1.Manifest type, for
// callers that want to operate on the standard OCI struct directly.
func (m *Schema2) ToOCIManifest() imgspecv1.Manifest {
	return imgspecv1.Manifest{
		Versioned: specsVersioned(m.SchemaVersion),
		MediaType: m.MediaType,
		Config:    m.Config,
		Layers:    m.Layers,
	}
}
