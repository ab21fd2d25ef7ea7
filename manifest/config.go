package manifest

import "github.com/opencontainers/go-digest"

// ContainerConfig is the "config" object embedded in a Schema2Config and
// in each v1Compatibility blob's "config"/"container_config" fields.
// Fields mirror Docker's real runtime config rather than OCI's
// imgspecv1.ImageConfig because the metadata-override operation (§4.13)
// needs structured access to fields (Label as a KEY=VALUE list rather
// than a map) that match the Python original's transform/v2_2/metadata_.py,
// not the OCI spec's later map-shaped Labels.
type ContainerConfig struct {
	User         string              `json:"User,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	Env          []string            `json:"Env,omitempty"`
	Entrypoint   []string            `json:"Entrypoint,omitempty"`
	Cmd          []string            `json:"Cmd,omitempty"`
	Volumes      map[string]struct{} `json:"Volumes,omitempty"`
	WorkingDir   string              `json:"WorkingDir,omitempty"`
	Label        []string            `json:"Label,omitempty"`
	StopSignal   string              `json:"StopSignal,omitempty"`
}

// Schema2History is one "history" entry of a v2.2/v1 image config.
type Schema2History struct {
	Created    string `json:"created,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	Author     string `json:"author,omitempty"`
	Comment    string `json:"comment,omitempty"`
	EmptyLayer bool   `json:"empty_layer,omitempty"`
}

// Schema2RootFS records the ordered diff_ids composing a config's layers.
type Schema2RootFS struct {
	Type    string          `json:"type"`
	DiffIDs []digest.Digest `json:"diff_ids"`
}

// Schema2Config is the JSON config blob referenced by a v2.2 manifest's
// "config" descriptor (and, byte-for-byte, by its OCI-mediaType twin: the
// OCI shim of §4.10 only rewrites manifest-level mediaType strings, never
// config content).
type Schema2Config struct {
	Architecture    string           `json:"architecture"`
	OS              string           `json:"os"`
	Config          *ContainerConfig `json:"config,omitempty"`
	ContainerConfig *ContainerConfig `json:"container_config,omitempty"`
	DockerVersion   string           `json:"docker_version,omitempty"`
	Container       string           `json:"container,omitempty"`
	Created         string           `json:"created,omitempty"`
	Author          string           `json:"author,omitempty"`
	History         []Schema2History `json:"history"`
	RootFS          Schema2RootFS    `json:"rootfs"`
}

// V1Compatibility is the per-layer JSON embedded in a schema1 manifest's
// history entries and in a v1 docker-save tarball's per-layer "json"
// files. Grounded on original_source/client/v2_2/v2_compat_.py's
// _BuildV1Compatibility/_BuildV1CompatibilityForTopLayer.
type V1Compatibility struct {
	ID              string           `json:"id"`
	Parent          string           `json:"parent,omitempty"`
	Comment         string           `json:"comment,omitempty"`
	Created         string           `json:"created,omitempty"`
	Author          string           `json:"author,omitempty"`
	ThrowAway       bool             `json:"throwaway,omitempty"`
	Architecture    string           `json:"architecture,omitempty"`
	OS              string           `json:"os,omitempty"`
	DockerVersion   string           `json:"docker_version,omitempty"`
	Container       string           `json:"container,omitempty"`
	Config          *ContainerConfig `json:"config,omitempty"`
	ContainerConfig *ContainerConfig `json:"container_config,omitempty"`
}

// ConfigFromV1History reconstructs a v2.2 config blob from an ordered
// list of v1Compatibility blobs (root layer first) and their
// corresponding diff_ids, without needing to recompute or re-verify any
// blob digest. This mirrors v2_compat_.py's standalone config_file()
// helper, useful when re-saving a "docker save" tarball that is already
// on disk.
func ConfigFromV1History(v1s []V1Compatibility, diffIDs []digest.Digest) Schema2Config {
	cfg := Schema2Config{
		RootFS: Schema2RootFS{Type: "layers", DiffIDs: diffIDs},
	}
	for i, v1 := range v1s {
		h := Schema2History{
			Created:   v1.Created,
			Author:    v1.Author,
			Comment:   v1.Comment,
			CreatedBy: v1.ContainerConfig.cmdString(),
		}
		if v1.ThrowAway {
			h.EmptyLayer = true
		}
		cfg.History = append(cfg.History, h)
		if i == len(v1s)-1 {
			cfg.Architecture = v1.Architecture
			cfg.OS = v1.OS
			cfg.DockerVersion = v1.DockerVersion
			cfg.Container = v1.Container
			cfg.Config = v1.Config
			cfg.ContainerConfig = v1.ContainerConfig
			cfg.Created = v1.Created
			cfg.Author = v1.Author
		}
	}
	return cfg
}

func (c *ContainerConfig) cmdString() string {
	if c == nil || len(c.Cmd) == 0 {
		return ""
	}
	s := ""
	for i, part := range c.Cmd {
		if i > 0 {
			s += " "
		}
		s += part
	}
	return s
}
