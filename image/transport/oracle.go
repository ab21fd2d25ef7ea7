// Package transport declares the Oracle interface this module uses to
// reach a registry's /v2/ API, and a default retryablehttp-backed
// implementation of it. Per spec.md §1, the HTTP transport, TLS, and
// token-exchange authentication are explicitly out of scope: Oracle is
// the seam a caller fills in with whatever already-authenticated client
// it has, the way the teacher's types.ImageSource is itself a caller-
// supplied abstraction over the real transport.
package transport

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Oracle.GetManifest when the registry
// answers 404, distinctly from any other transport failure, so callers
// like image/registry.Source.Exists can tell "does not exist" apart
// from a propagate-worthy error (§4.6: "returns false on 404 ...
// propagates any other transport failure").
var ErrNotFound = errors.New("not found")

// Oracle answers the handful of registry questions image/registry needs:
// fetch a manifest or blob by its suffix path, and test existence with a
// HEAD. Every method is scoped to one repository; callers construct one
// Oracle per (registry, repository, credential) combination.
type Oracle interface {
	// GetManifest fetches "/v2/<repo>/manifests/<ref>". acceptMediaTypes
	// becomes the request's Accept header, letting the caller request a
	// manifest list before falling back to a single manifest.
	GetManifest(ctx context.Context, ref string, acceptMediaTypes []string) (body []byte, contentType string, err error)

	// GetBlob fetches "/v2/<repo>/blobs/<digest>" and returns a stream
	// the caller must Close.
	GetBlob(ctx context.Context, digest string) (io.ReadCloser, error)

	// HeadBlob reports whether a blob exists and, if so, its
	// Content-Length. Returns ok=false, size=-1 on a 404, and ok=true,
	// size=-1 when a successful response carries no Content-Length.
	HeadBlob(ctx context.Context, digest string) (ok bool, size int64, err error)

	// Catalog lists repository names, paginating via the Link header
	// the way the registry API does it (§4.6 "catalog() with
	// pagination"). last is the empty string on the first call.
	Catalog(ctx context.Context, last string, limit int) (repos []string, next string, err error)
}
