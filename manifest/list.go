package manifest

import (
	"encoding/json"
	"sort"

	"github.com/opencontainers/go-digest"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// ManifestDescriptor references one platform-specific manifest from a
// Docker manifest list. Grounded on the teacher's
// manifest/docker_list.go Schema2ManifestDescriptor, generalized to use
// this package's own Platform (carrying the Docker-only "features"
// field OCI dropped).
type ManifestDescriptor struct {
	MediaType string        `json:"mediaType"`
	Size      int64         `json:"size"`
	Digest    digest.Digest `json:"digest"`
	Platform  Platform      `json:"platform"`
}

// List is the parsed, format-neutral view of either a Docker manifest
// list or an OCI image index: a set of (digest, platform) entries plus
// enough of the original fields to re-derive a list-level "image ID" for
// ImageID-style callers (§3 "a docker_image_list instance needs its own
// composite digest for docker images --digests-style reporting").
type List struct {
	SchemaVersion int
	MediaType     string
	Entries       []ManifestDescriptor
}

// ParseList dispatches on mediaType: an OCI index is unmarshaled through
// imgspecv1.Index (wiring the image-spec's own Index/Descriptor/Platform
// types, since OCI's platform shape genuinely lacks the Docker-only
// "features" field) and then normalized into the same List shape a
// Docker manifest list produces.
func ParseList(blob []byte, mediaType string) (*List, error) {
	switch mediaType {
	case DockerV2ListMediaType:
		return parseDockerList(blob)
	case OCI1IndexMediaType:
		return parseOCIIndex(blob)
	default:
		return nil, errors.Errorf("unsupported manifest list media type %s", mediaType)
	}
}

func parseDockerList(blob []byte) (*List, error) {
	var wire struct {
		SchemaVersion int                  `json:"schemaVersion"`
		MediaType     string               `json:"mediaType"`
		Manifests     []ManifestDescriptor `json:"manifests"`
	}
	if err := json.Unmarshal(blob, &wire); err != nil {
		return nil, errors.Wrap(err, "parsing manifest list")
	}
	return &List{SchemaVersion: wire.SchemaVersion, MediaType: wire.MediaType, Entries: wire.Manifests}, nil
}

func parseOCIIndex(blob []byte) (*List, error) {
	idx := &imgspecv1.Index{}
	if err := json.Unmarshal(blob, idx); err != nil {
		return nil, errors.Wrap(err, "parsing OCI index")
	}
	l := &List{SchemaVersion: idx.SchemaVersion, MediaType: OCI1IndexMediaType}
	for _, m := range idx.Manifests {
		entry := ManifestDescriptor{MediaType: m.MediaType, Size: m.Size, Digest: m.Digest}
		if m.Platform != nil {
			entry.Platform = Platform{
				Architecture: m.Platform.Architecture,
				OS:           m.Platform.OS,
				OSVersion:    m.Platform.OSVersion,
				OSFeatures:   m.Platform.OSFeatures,
				Variant:      m.Platform.Variant,
			}
		}
		l.Entries = append(l.Entries, entry)
	}
	return l, nil
}

// ChooseInstance picks the entry whose Platform.CanRun(wanted) is true,
// matching original_source/client/v2_2/docker_image_list_.py's
// resolve_all()/resolve() dispatch (first match wins).
func (l *List) ChooseInstance(wanted Platform) (ManifestDescriptor, error) {
	for _, e := range l.Entries {
		if e.Platform.CanRun(wanted) {
			return e, nil
		}
	}
	return ManifestDescriptor{}, errors.New("no compatible manifest in list for requested platform")
}

// ImageID returns a composite digest over the sorted set of instance
// digests, matching the teacher's manifest/list.go computeListID: a
// manifest list has no registry-assigned digest of its own analogous to
// a single image's config digest, so this synthesizes one for
// docker-images-style reporting.
func (l *List) ImageID() digest.Digest {
	hexes := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		hexes = append(hexes, e.Digest.Encoded())
	}
	sort.Strings(hexes)
	joined := ""
	for i, h := range hexes {
		if i > 0 {
			joined += " "
		}
		joined += h
	}
	return digest.FromString(joined)
}
