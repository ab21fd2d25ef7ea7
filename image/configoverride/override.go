// Package configoverride implements the metadata override of §4.13:
// applying entrypoint/cmd/user/env/labels/ports/volumes/workdir
// replacements onto a v2.2/OCI config, appending the matching "no-op"
// history entry the real docker build process would have recorded.
// Grounded on original_source/transform/v2_2/metadata_.py's Override().
package configoverride

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/google/containerregistry/manifest"
)

// Overrides is the set of fields a caller may replace or merge into a
// config, mirroring metadata_.py's Overrides namedtuple. A nil/empty
// field leaves the corresponding config field untouched, except where
// noted.
type Overrides struct {
	Entrypoint []string
	Cmd        []string
	User       string
	Env        map[string]string // merged with existing Env, not replaced
	Labels     map[string]string // merged with existing Label, not replaced
	Ports      []string          // "80" or "80/tcp"; normalized to "80/tcp"
	Volumes    []string
	WorkingDir string
	Author     string
	Created    string
}

// Override returns a copy of cfg with o applied, plus a new history
// entry describing the synthetic "build step" the override represents.
// A non-empty architecture or operatingSystem replaces cfg's top-level
// field of the same name, whatever cfg already holds; an empty one leaves
// that field as it is.
func Override(cfg manifest.Schema2Config, o Overrides, architecture, operatingSystem string) (manifest.Schema2Config, error) {
	out := cfg
	if out.Config == nil {
		out.Config = &manifest.ContainerConfig{}
	} else {
		copied := *out.Config
		out.Config = &copied
	}
	if architecture != "" {
		out.Architecture = architecture
	}
	if operatingSystem != "" {
		out.OS = operatingSystem
	}

	if len(o.Entrypoint) > 0 {
		out.Config.Entrypoint = o.Entrypoint
	}
	if len(o.Cmd) > 0 {
		out.Config.Cmd = o.Cmd
	}
	if o.User != "" {
		out.Config.User = o.User
	}
	if o.WorkingDir != "" {
		out.Config.WorkingDir = o.WorkingDir
	}

	if len(o.Env) > 0 {
		merged, err := mergeKeyValue(out.Config.Env, o.Env)
		if err != nil {
			return manifest.Schema2Config{}, errors.Wrap(err, "merging Env")
		}
		out.Config.Env = merged
	}
	if len(o.Labels) > 0 {
		merged, err := mergeKeyValue(out.Config.Label, o.Labels)
		if err != nil {
			return manifest.Schema2Config{}, errors.Wrap(err, "merging Label")
		}
		out.Config.Label = merged
	}

	if len(o.Ports) > 0 {
		if out.Config.ExposedPorts == nil {
			out.Config.ExposedPorts = map[string]struct{}{}
		}
		for _, p := range o.Ports {
			out.Config.ExposedPorts[normalizePort(p)] = struct{}{}
		}
	}
	if len(o.Volumes) > 0 {
		if out.Config.Volumes == nil {
			out.Config.Volumes = map[string]struct{}{}
		}
		for _, v := range o.Volumes {
			out.Config.Volumes[v] = struct{}{}
		}
	}

	out.History = append(append([]manifest.Schema2History{}, cfg.History...), manifest.Schema2History{
		Created:   o.Created,
		Author:    o.Author,
		CreatedBy: "metadata override",
	})

	return out, nil
}

// mergeKeyValue unions existing KEY=VALUE entries with updates
// (updates win on conflict), resolves "${VAR}"/"$VAR" references in each
// update value against the existing entries (not the process
// environment), and returns the result sorted by key — metadata_.py's
// _Resolve + _KeyValueToDict/_DictToKeyValue round trip.
func mergeKeyValue(existing []string, updates map[string]string) ([]string, error) {
	base := keyValueToMap(existing)
	merged := keyValueToMap(existing)
	for k, v := range updates {
		merged[k] = os.Expand(v, func(name string) string { return base[name] })
	}
	return mapToSortedKeyValue(merged), nil
}

func keyValueToMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		} else {
			m[parts[0]] = ""
		}
	}
	return m
}

func mapToSortedKeyValue(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + m[k]
	}
	return out
}

// normalizePort accepts "80" or "80/tcp" and always returns "80/tcp",
// matching metadata_.py's port-spec handling.
func normalizePort(p string) string {
	if strings.Contains(p, "/") {
		return p
	}
	return p + "/tcp"
}
