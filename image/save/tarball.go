// Package save implements the Save targets of §4.11: a v2.2
// "docker save"-style tarball (Tarball: config, gzipped layers and
// manifest.json; it writes no v1 layer directories and no
// "repositories" file), the legacy v1 layout on its own (V1Tarball),
// and the fast on-disk layout consumed by image/disk.
// Grounded on original_source/client/v2_2/save_.py's tarball() (v1
// delegation, manifest.json construction) and client/v1/save_.py's
// on-disk layer directory layout.
package save

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/config"
	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
)

// manifestJSONEntry mirrors the tarball package's reader-side type;
// duplicated here (rather than imported) to keep save's only dependency
// on tarball-shaped JSON one-directional: save produces what tarball
// consumes, but save does not need tarball's reader machinery.
type manifestJSONEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// Tarball writes v as a "docker save"-compatible archive to w: the
// config blob as "<digest-hex>.json", each layer as
// "<digest-hex>/layer.tar.gz", and a top-level "manifest.json" naming
// them in root-to-top order, matching save_.py's tarball() writer.
func Tarball(ctx context.Context, w io.Writer, v image.View, repoTags []string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()
	return writeTarball(ctx, tw, v, repoTags)
}

func writeTarball(ctx context.Context, tw *tar.Writer, v image.View, repoTags []string) error {
	configBlob, err := v.ConfigBlob(ctx)
	if err != nil {
		return errors.Wrap(err, "reading config blob")
	}
	configName := digest.FromBytes(configBlob).Encoded() + ".json"
	if err := writeTarEntry(tw, configName, configBlob); err != nil {
		return err
	}

	entry := manifestJSONEntry{Config: configName, RepoTags: repoTags}
	for _, info := range v.LayerInfos() {
		blob, err := v.Blob(ctx, info)
		if err != nil {
			return errors.Wrapf(err, "fetching layer %s", info.Digest)
		}
		name := fmt.Sprintf("%s/layer.tar.gz", info.Digest.Encoded())
		if err := writeTarEntry(tw, name, blob); err != nil {
			return err
		}
		entry.Layers = append(entry.Layers, name)
	}

	manifestJSON, err := json.Marshal([]manifestJSONEntry{entry})
	if err != nil {
		return err
	}
	return writeTarEntry(tw, "manifest.json", manifestJSON)
}

func writeTarEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(content)), Mode: 0644}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for %s", name)
	}
	if _, err := tw.Write(content); err != nil {
		return errors.Wrapf(err, "writing content for %s", name)
	}
	return nil
}

// GzipDeterministic compresses raw using pgzip with cfg.GzipLevel and a
// frozen ModTime, so identical input always produces byte-identical
// gzip output — the "gzip determinism" invariant of §4.7 relies on this
// when recomputing a blob digest after recompressing a layer.
func GzipDeterministic(raw []byte, cfg config.Config) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := pgzip.NewWriterLevel(&buf, cfg.Save.GzipLevel)
	if err != nil {
		return nil, errors.Wrap(err, "constructing gzip writer")
	}
	zw.ModTime = cfg.Save.DeterministicMTime
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, errors.Wrap(err, "compressing")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing gzip writer")
	}
	return buf.Bytes(), nil
}
