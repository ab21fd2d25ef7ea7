package image

import "github.com/pkg/errors"

// DigestMismatch is returned whenever downloaded bytes do not hash to
// the digest that referenced them (§4.2 Invariant 1: every read that
// crosses a trust boundary re-verifies).
type DigestMismatch struct {
	Want, Got string
}

func (e *DigestMismatch) Error() string {
	return errors.Errorf("digest mismatch: want %s, got %s", e.Want, e.Got).Error()
}

// InvalidMediaType is returned when a manifest or list's mediaType field
// does not match any format this module understands.
type InvalidMediaType struct {
	MediaType string
}

func (e *InvalidMediaType) Error() string {
	return errors.Errorf("unsupported media type %q", e.MediaType).Error()
}

// MalformedResponse is returned when a registry or tarball source
// returns a 2xx/success response whose body does not parse as the
// format its mediaType or context promised — distinct from "not found",
// per the exists() open-question decision recorded in DESIGN.md.
type MalformedResponse struct {
	Reason string
}

func (e *MalformedResponse) Error() string {
	return errors.Errorf("malformed response: %s", e.Reason).Error()
}

// NoCompatibleManifest is returned by image/registry's Source.Resolve when no instance
// in the list satisfies manifest.Platform.CanRun.
type NoCompatibleManifest struct {
	Wanted string
}

func (e *NoCompatibleManifest) Error() string {
	return errors.Errorf("no manifest in list is compatible with platform %s", e.Wanted).Error()
}
