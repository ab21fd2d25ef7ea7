// Package digest provides the sha256 content-addressing primitives shared
// by every image view and wire format in this module.
package digest

import (
	"bytes"
	"compress/gzip"
	"io"

	godigest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Digest is the canonical "algo:hex" content address. It is a type alias
// for go-digest's string-backed Digest so that every package that imports
// github.com/opencontainers/go-digest directly (the manifest and
// image-spec wire types do) interoperates without conversion.
type Digest = godigest.Digest

// BadDigest is returned when a string does not parse as "algo:hex".
type BadDigest struct {
	Value string
	Cause error
}

func (e *BadDigest) Error() string {
	return errors.Wrapf(e.Cause, "malformed digest %q", e.Value).Error()
}

func (e *BadDigest) Unwrap() error { return e.Cause }

// Parse validates s as a digest string. Unlike godigest.Parse, this module
// only ever deals in sha256, matching §4.2 ("Digest algorithm: sha256
// only"); any other algorithm is rejected even if go-digest would accept
// it as well-formed.
func Parse(s string) (Digest, error) {
	d := Digest(s)
	if err := d.Validate(); err != nil {
		return "", &BadDigest{Value: s, Cause: err}
	}
	if d.Algorithm() != godigest.SHA256 {
		return "", &BadDigest{Value: s, Cause: errors.Errorf("algorithm %q is not sha256", d.Algorithm())}
	}
	return d, nil
}

// FromBytes computes the sha256 digest of b.
func FromBytes(b []byte) Digest {
	return godigest.FromBytes(b)
}

// Verify reports whether the sha256 digest of b equals want.
func Verify(want Digest, b []byte) bool {
	return FromBytes(b) == want
}

// Gunzip returns the uncompressed bytes of gzipped, used to compute
// diff_ids (sha256 over uncompressed tar bytes) from a compressed layer
// blob (sha256 over the on-wire gzipped bytes). See §4.2.
func Gunzip(gzipped []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		return nil, errors.Wrap(err, "decompressing blob")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing blob")
	}
	return out, nil
}

// DiffID computes the diff_id of a gzipped layer: sha256 of its
// uncompressed tar bytes.
func DiffID(gzipped []byte) (Digest, error) {
	raw, err := Gunzip(gzipped)
	if err != nil {
		return "", err
	}
	return FromBytes(raw), nil
}

// EmptyTarGzipBytes is the canonical gzip-compressed empty tar archive
// used throughout the ecosystem to represent "empty_layer" history
// entries that carry no real blob, matching the EMPTY_TAR_BYTES literal
// in the original implementation's v2_compat module. Used by Append
// (§4.9) and the v2.2→v2 transcoder (§4.10): the v2.2→v2 transcoder
// must still be able to answer blob() for the canonical empty-layer
// digest even when no view backs it with real bytes.
var EmptyTarGzipBytes = []byte{
	0x1f, 0x8b, 0x08, 0x00, 0x00, 0x09, 0x6e, 0x88, 0x00, 0xff,
	0x62, 0x18, 0x05, 0xa3, 0x60, 0x14, 0x8c, 0x58, 0x00, 0x08,
	0x00, 0x00, 0xff, 0xff, 0x2e, 0xaf, 0xb5, 0xef, 0x00, 0x04,
	0x00, 0x00,
}

// EmptyTarDigest is the well-known historical digest of
// EmptyTarGzipBytes used by docker/distribution and every other
// implementation for this same purpose.
const EmptyTarDigest Digest = "sha256:a3ed95caeb02ffe68cdd9fd84406680ae93d633cb16422d00e8a7c22955b46d4"
