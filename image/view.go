// Package image defines the core "image view" abstraction: a lazy,
// scoped capability interface that every concrete source (registry
// fetch, tarball, on-disk layout, appended layer, transcoded wrapper)
// implements. Concrete views form a tree by composition, never by
// inheritance: a wrapper view holds a reference to the view it wraps and
// never the other way around, matching how the teacher's
// image/docker_schema2.go/oci.go wrap a types.ImageSource without the
// source ever knowing about the wrapper.
package image

import (
	"context"

	"github.com/opencontainers/go-digest"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/google/containerregistry/manifest"
)

// BlobInfo is everything a caller needs to fetch and verify one content
// blob (a layer or a config object). Size may be -1 when unknown (a v1
// ancestry chain does not record layer sizes).
type BlobInfo struct {
	Digest    digest.Digest
	DiffID    digest.Digest // zero value if not yet known, e.g. before download
	Size      int64
	MediaType string
	URLs      []string // foreign-layer fallback locations
}

// View is the read-only capability surface shared by every single-image
// (non-list) source: FromRegistry, FromTarball, FromDisk, Append, and
// every transcoder wrapping one of those. Grounded on the shape of the
// teacher's types.Image interface, narrowed to what spec.md's operations
// actually need (no push/session methods — those stay behind the Oracle
// interface in image/transport).
type View interface {
	// MediaType is the manifest's own wire media type: one of the
	// constants in the manifest package.
	MediaType() string

	// Manifest returns the raw manifest bytes exactly as parsed (or
	// synthesized, for views built from components rather than bytes).
	Manifest() ([]byte, error)

	// ManifestDigest returns the image's content address as a single
	// image (§4.2 Invariant 1): digest.FromBytes(Manifest()), except for
	// schema1 views, which digest the manifest with its signatures block
	// removed.
	ManifestDigest() (digest.Digest, error)

	// ConfigBlob returns the raw config JSON, or nil for schema1 views
	// that have no separate config object.
	ConfigBlob(ctx context.Context) ([]byte, error)

	// LayerInfos returns BlobInfo for every layer, root layer first, in
	// the same order the manifest lists them in after any
	// format-specific reversal (schema1 lists topmost first on the
	// wire; this method always returns root-first).
	LayerInfos() []BlobInfo

	// Blob returns the content-addressed bytes for one layer referenced
	// by this view. Not every view serves the config digest here; the
	// config is read through ConfigBlob.
	Blob(ctx context.Context, info BlobInfo) ([]byte, error)
}

// OCIConfigView is implemented by views whose config blob parses as an
// OCI-shaped image config (v2.2 and OCI manifests; schema1 does not
// implement this, matching the teacher's oci.go OCIConfig() being absent
// from manifestSchema1).
type OCIConfigView interface {
	View
	OCIConfig(ctx context.Context) (*imgspecv1.Image, error)
}

// Schema2ConfigView is implemented by every view whose config blob
// parses as this module's own manifest.Schema2Config (v2.2 and OCI; the
// two share byte-identical config content per §4.10).
type Schema2ConfigView interface {
	View
	Schema2Config(ctx context.Context) (*manifest.Schema2Config, error)
}

// ListView is the capability surface of a manifest list / OCI index
// source: it resolves to a single View for a requested platform without
// itself being a View (a list has no layers or config of its own).
type ListView interface {
	// List returns the parsed, format-neutral manifest list.
	List(ctx context.Context) (*manifest.List, error)

	// Resolve fetches and returns the View for the instance matching
	// wanted, per manifest.List.ChooseInstance (§4.6).
	Resolve(ctx context.Context, wanted manifest.Platform) (View, error)
}
