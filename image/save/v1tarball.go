package save

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/google/containerregistry/digest"
	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/image/transcode"
	"github.com/google/containerregistry/manifest"
)

// schema2ConfigSource matches image/transcode's requirement without
// importing image/registry, image/tarball, etc.: any view that can
// produce a manifest.Schema2Config qualifies.
type schema2ConfigSource interface {
	Schema2Config(ctx context.Context) (*manifest.Schema2Config, error)
}

// V1Tarball writes the legacy "docker save" v1 layout: one directory per
// ancestry-chain layer ID holding VERSION, json, and layer.tar, plus a
// top-level "repositories" file. It delegates the v2.2→v1 manifest
// synthesis to image/transcode.V2FromV22 and unwraps the gzip compression
// schema1/v1 layer.tar entries were historically stored uncompressed,
// matching client/v1/save_.py's tarball()/multi_image_tarball().
func V1Tarball(ctx context.Context, w io.Writer, v image.View, cfgSrc schema2ConfigSource, repoName, tag string) error {
	s1, err := transcode.V2FromV22(ctx, v, cfgSrc, repoName, tag)
	if err != nil {
		return errors.Wrap(err, "synthesizing v1 manifest")
	}
	v1s, err := s1.V1Compatibilities()
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	defer tw.Close()

	layers := v.LayerInfos() // root-first
	n := len(layers)
	for i := n - 1; i >= 0; i-- { // walk topmost-first to match s1.FSLayers/History order
		fsIdx := n - 1 - i
		id := mustLayerID(s1, fsIdx)
		if err := writeTarEntry(tw, id+"/VERSION", []byte("1.0")); err != nil {
			return err
		}
		if err := writeTarEntry(tw, id+"/json", []byte(mustMarshal(v1s[fsIdx]))); err != nil {
			return err
		}
		blob, err := v.Blob(ctx, layers[i])
		if err != nil {
			return errors.Wrapf(err, "fetching layer %s", layers[i].Digest)
		}
		raw, err := ungzipIfNeeded(blob)
		if err != nil {
			return err
		}
		if err := writeTarEntry(tw, id+"/layer.tar", raw); err != nil {
			return err
		}
	}

	topID := mustLayerID(s1, 0)
	repos := map[string]map[string]string{repoName: {tag: topID}}
	reposJSON, err := json.Marshal(repos)
	if err != nil {
		return err
	}
	return writeTarEntry(tw, "repositories", reposJSON)
}

func mustLayerID(s1 *manifest.Schema1, historyIdx int) string {
	v1s, _ := s1.V1Compatibilities()
	return v1s[historyIdx].ID
}

func mustMarshal(v1 manifest.V1Compatibility) []byte {
	raw, _ := json.Marshal(v1)
	return raw
}

func ungzipIfNeeded(blob []byte) ([]byte, error) {
	if len(blob) >= 2 && blob[0] == 0x1f && blob[1] == 0x8b {
		return digest.Gunzip(blob)
	}
	return blob, nil
}
