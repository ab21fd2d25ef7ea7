// Package manifest holds the wire-format structs, media type constants,
// and canonical-JSON helpers shared by every image view in this module:
// schema1 (v1 ancestry-chained, signed), schema2/2.2 (config+layers
// descriptors), OCI (image-spec equivalents), and manifest
// lists/indices. Grounded on the teacher's manifest/ package, generalized
// from its read-only inspection helpers into the full read+build+convert
// surface this module's transcoders need.
package manifest

import (
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker media types, matching the teacher's manifest/docker_schema2.go
// and docker_list.go constants.
const (
	DockerV2Schema1MediaType       = "application/vnd.docker.distribution.manifest.v1+json"
	DockerV2Schema1SignedMediaType = "application/vnd.docker.distribution.manifest.v1+prettyjws"
	DockerV2Schema2MediaType       = "application/vnd.docker.distribution.manifest.v2+json"
	DockerV2Schema2ConfigMediaType = "application/vnd.docker.container.image.v1+json"
	DockerV2Schema2LayerMediaType  = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	DockerV2ListMediaType          = "application/vnd.docker.distribution.manifest.list.v2+json"
)

// OCI media types, re-exported from opencontainers/image-spec so callers
// never need to import that package just to compare a mediaType string.
const (
	OCI1MediaType       = imgspecv1.MediaTypeImageManifest
	OCI1ConfigMediaType = imgspecv1.MediaTypeImageConfig
	OCI1LayerMediaType  = imgspecv1.MediaTypeImageLayerGzip
	OCI1IndexMediaType  = imgspecv1.MediaTypeImageIndex
)

// dockerToOCIManifest and ociToDockerManifest implement the pure
// media-type rewrite of §4.10: the OCI pair of a v2.2 manifest differs
// only in these three string fields, never in blob content.
var dockerToOCIManifest = map[string]string{
	DockerV2Schema2MediaType:       OCI1MediaType,
	DockerV2Schema2ConfigMediaType: OCI1ConfigMediaType,
	DockerV2Schema2LayerMediaType:  OCI1LayerMediaType,
}

var ociToDockerManifest = map[string]string{
	OCI1MediaType:       DockerV2Schema2MediaType,
	OCI1ConfigMediaType: DockerV2Schema2ConfigMediaType,
	OCI1LayerMediaType:  DockerV2Schema2LayerMediaType,
}

// dockerLayerToOCI and ociLayerToDocker map a mediaType to its OCI or
// Docker equivalent; unknown types (foreign layers, custom URLs media types) are
// returned unchanged.
func dockerLayerToOCI(mt string) string {
	if v, ok := dockerToOCIManifest[mt]; ok {
		return v
	}
	return mt
}

func ociLayerToDocker(mt string) string {
	if v, ok := ociToDockerManifest[mt]; ok {
		return v
	}
	return mt
}
