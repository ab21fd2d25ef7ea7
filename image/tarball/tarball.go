// Package tarball implements FromTarball (§4.7): reading a "docker
// save"-style tar archive as an image.View. Grounded on
// original_source/client/v2_2/docker_image_.py's FromTarball
// (per-read tar reopen under a mutex, legacy repositories-file tag
// fallback) and client/v1/save_.py for the legacy on-disk layout this
// package must also recognize when reading an older tarball.
package tarball

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"sync"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// manifestJSONEntry is one element of a v2.2-tarball's top-level
// "manifest.json" array, matching save_.py's tarball() writer.
type manifestJSONEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// View reads a docker-save tarball without extracting it: FromTarball
// reads the config and hashes each layer once to build the manifest,
// keeping only the config bytes, and every Blob call reopens and scans
// the archive again, guarded by a mutex since archive/tar.Reader is not
// safe for concurrent use — the same tradeoff the Python original makes
// with its per-read file handle and lock.
type View struct {
	path string
	mu   sync.Mutex

	entry      manifestJSONEntry
	configName string

	configBlob []byte
	manifest   *manifest.Schema2
	rawManifest []byte
}

// FromTarball opens path (a "docker save" archive) and returns the
// image.View for its single image. If the archive holds more than one
// manifest.json entry, the first is used, matching the original's
// assumption that fast_pusher-authored tarballs always name a single
// image explicitly.
func FromTarball(path string) (*View, error) {
	entries, err := readManifestJSON(path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("tarball has no entries in manifest.json")
	}
	v := &View{path: path, entry: entries[0], configName: entries[0].Config}
	if err := v.loadManifest(); err != nil {
		return nil, err
	}
	return v, nil
}

func readManifestJSON(tarPath string) ([]manifestJSONEntry, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening tarball")
	}
	defer f.Close()
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading tarball")
		}
		if path.Clean(hdr.Name) == "manifest.json" {
			var entries []manifestJSONEntry
			if err := json.NewDecoder(tr).Decode(&entries); err != nil {
				return nil, errors.Wrap(err, "parsing manifest.json")
			}
			return entries, nil
		}
	}
	return legacyRepositoriesFallback(tarPath)
}

// legacyRepositoriesFallback recognizes a v1-only tarball (no
// manifest.json, only a top-level "repositories" file plus per-layer
// directories, the layout client/v1/save_.py's multi_image_tarball
// writes) and reports it as an error: this package does not read such
// tarballs.
func legacyRepositoriesFallback(tarPath string) ([]manifestJSONEntry, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if path.Clean(hdr.Name) == "repositories" {
			var repos map[string]map[string]string
			if err := json.NewDecoder(tr).Decode(&repos); err != nil {
				return nil, errors.Wrap(err, "parsing legacy repositories file")
			}
			return nil, errors.New("legacy v1-only tarball has no v2.2 manifest.json")
		}
	}
	return nil, errors.New("tarball has neither manifest.json nor a legacy repositories file")
}

func (v *View) loadManifest() error {
	configBlob, err := v.readTarEntry(v.configName)
	if err != nil {
		return errors.Wrapf(err, "reading config entry %s", v.configName)
	}
	v.configBlob = configBlob

	layers := make([]imgspecv1.Descriptor, len(v.entry.Layers))
	for i, name := range v.entry.Layers {
		blob, err := v.readTarEntry(name)
		if err != nil {
			return errors.Wrapf(err, "reading layer entry %s", name)
		}
		layers[i] = imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2LayerMediaType,
			Digest:    digest.FromBytes(blob),
			Size:      int64(len(blob)),
		}
	}
	v.manifest = &manifest.Schema2{
		SchemaVersion: 2,
		MediaType:     manifest.DockerV2Schema2MediaType,
		Config: imgspecv1.Descriptor{
			MediaType: manifest.DockerV2Schema2ConfigMediaType,
			Digest:    digest.FromBytes(configBlob),
			Size:      int64(len(configBlob)),
		},
		Layers: layers,
	}
	raw, err := v.manifest.Serialize()
	if err != nil {
		return err
	}
	v.rawManifest = raw
	return nil
}

// readTarEntry reopens the archive and scans for name under v.mu, the
// per-read-reopen pattern FromTarball uses in the original instead of
// holding the whole archive decompressed in memory.
func (v *View) readTarEntry(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := os.Open(v.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errors.Errorf("entry %s not found in tarball", name)
		}
		if err != nil {
			return nil, err
		}
		if path.Clean(hdr.Name) == path.Clean(name) {
			return io.ReadAll(tr)
		}
	}
}

func (v *View) MediaType() string                { return v.manifest.MediaType }
func (v *View) Manifest() ([]byte, error)        { return v.rawManifest, nil }
func (v *View) ManifestDigest() (digest.Digest, error) {
	return digest.FromBytes(v.rawManifest), nil
}

func (v *View) ConfigBlob(ctx context.Context) ([]byte, error) { return v.configBlob, nil }

func (v *View) Schema2Config(ctx context.Context) (*manifest.Schema2Config, error) {
	cfg := &manifest.Schema2Config{}
	if err := json.Unmarshal(v.configBlob, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing tarball config")
	}
	return cfg, nil
}

func (v *View) LayerInfos() []image.BlobInfo {
	out := make([]image.BlobInfo, len(v.manifest.Layers))
	for i, l := range v.manifest.Layers {
		out[i] = image.BlobInfo{Digest: l.Digest, Size: l.Size, MediaType: l.MediaType}
	}
	return out
}

func (v *View) Blob(ctx context.Context, info image.BlobInfo) ([]byte, error) {
	for _, name := range v.entry.Layers {
		blob, err := v.readTarEntry(name)
		if err != nil {
			return nil, err
		}
		if digest.FromBytes(blob) == info.Digest {
			return blob, nil
		}
	}
	return nil, errors.Errorf("blob %s not found in tarball", info.Digest)
}

// RepoTags returns the tags the archive's manifest.json entry claims,
// e.g. ["gcr.io/project/image:latest"].
func (v *View) RepoTags() []string { return v.entry.RepoTags }
