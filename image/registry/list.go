package registry

import (
	"context"

	"github.com/google/containerregistry/image"
	"github.com/google/containerregistry/manifest"
)

// List fetches ref and parses it as a manifest list / OCI index. It
// returns a MalformedResponse-wrapped error if ref resolves to a single
// manifest instead.
func (s *Source) List(ctx context.Context, ref string) (*manifest.List, error) {
	body, contentType, err := s.Oracle.GetManifest(ctx, ref, acceptAll)
	if err != nil {
		return nil, err
	}
	mt := normalizeMediaType(body, contentType)
	if mt != manifest.DockerV2ListMediaType && mt != manifest.OCI1IndexMediaType {
		return nil, &image.MalformedResponse{Reason: "reference did not resolve to a manifest list"}
	}
	return manifest.ParseList(body, mt)
}

// Resolve fetches ref as a list and returns the View for the entry whose
// Platform.CanRun(wanted) is true, per §4.6.
func (s *Source) Resolve(ctx context.Context, ref string, wanted manifest.Platform) (image.View, error) {
	list, err := s.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	entry, err := list.ChooseInstance(wanted)
	if err != nil {
		return nil, &image.NoCompatibleManifest{Wanted: wanted.OS + "/" + wanted.Architecture}
	}
	return s.FromRegistry(ctx, entry.Digest.String())
}
