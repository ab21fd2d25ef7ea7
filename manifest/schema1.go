package manifest

import (
	"encoding/json"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Schema1FSLayer is one entry of a schema1 manifest's "fsLayers" array,
// listed topmost-first (the reverse of Schema2's "layers").
type Schema1FSLayer struct {
	BlobSum digest.Digest `json:"blobSum"`
}

// Schema1History carries one serialized V1Compatibility blob per layer,
// in the same topmost-first order as FSLayers.
type Schema1History struct {
	V1Compatibility string `json:"v1Compatibility"`
}

// Schema1JWSHeader is the JOSE protected header of a schema1 signature
// block: an embedded JSON Web Key identifying the signer.
type Schema1JWSHeader struct {
	JWK       map[string]interface{} `json:"jwk"`
	Algorithm string                 `json:"alg"`
}

// Schema1Signature is one detached JWS signature over the manifest's
// canonical bytes, as produced by libtrust.
type Schema1Signature struct {
	Header    Schema1JWSHeader `json:"header"`
	Signature string           `json:"signature"`
	Protected string           `json:"protected"`
}

// Schema1 is the ancestry-chained, optionally signed v1 manifest format.
// Grounded on the teacher's image/docker_schema1.go manifestSchema1
// struct, generalized with exported fields and a real signature type
// (the teacher only read schema1, never produced it).
type Schema1 struct {
	Name          string             `json:"name"`
	Tag           string             `json:"tag"`
	Architecture  string             `json:"architecture,omitempty"`
	FSLayers      []Schema1FSLayer   `json:"fsLayers"`
	History       []Schema1History   `json:"history"`
	SchemaVersion int                `json:"schemaVersion"`
	Signatures    []Schema1Signature `json:"signatures,omitempty"`
}

// UnmarshalSchema1 parses blob, which may or may not carry a trailing
// "signatures" block.
func UnmarshalSchema1(blob []byte) (*Schema1, error) {
	s1 := &Schema1{}
	if err := json.Unmarshal(blob, s1); err != nil {
		return nil, errors.Wrap(err, "parsing schema1 manifest")
	}
	if s1.SchemaVersion != 1 {
		return nil, errors.Errorf("unexpected schemaVersion %d in schema1 manifest", s1.SchemaVersion)
	}
	if len(s1.FSLayers) != len(s1.History) {
		return nil, errors.Errorf("fsLayers count %d does not match history count %d", len(s1.FSLayers), len(s1.History))
	}
	return s1, nil
}

// UnsignedPayload returns m re-serialized as canonical (key-sorted) JSON
// with its "signatures" block removed; it does not return a slice of the
// bytes m was parsed from. This is the form a schema1 manifest digest is
// computed over.
func (m *Schema1) UnsignedPayload() ([]byte, error) {
	unsigned := *m
	unsigned.Signatures = nil
	return Canonical(&unsigned)
}

// V1Compatibilities unmarshals each history entry's embedded JSON blob.
func (m *Schema1) V1Compatibilities() ([]V1Compatibility, error) {
	out := make([]V1Compatibility, len(m.History))
	for i, h := range m.History {
		if err := json.Unmarshal([]byte(h.V1Compatibility), &out[i]); err != nil {
			return nil, errors.Wrapf(err, "parsing v1Compatibility entry %d", i)
		}
	}
	return out, nil
}

// ValidateV1IDs checks the ancestry chain embedded in m's history: each
// entry's "id" must be unique and, except for the last (root) entry, its
// "parent" must equal the id of the entry one layer below it. Grounded
// on the teacher's image/docker_schema1.go fixManifestLayers/validateV1ID.
func (m *Schema1) ValidateV1IDs() error {
	v1s, err := m.V1Compatibilities()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(v1s))
	for i, v1 := range v1s {
		if v1.ID == "" {
			return errors.Errorf("history entry %d has no id", i)
		}
		if _, dup := seen[v1.ID]; dup {
			return errors.Errorf("duplicate v1 id %s", v1.ID)
		}
		seen[v1.ID] = struct{}{}
		if i < len(v1s)-1 && v1.Parent != v1s[i+1].ID {
			return errors.Errorf("history entry %d parent %q does not match next entry id %q", i, v1.Parent, v1s[i+1].ID)
		}
	}
	return nil
}
