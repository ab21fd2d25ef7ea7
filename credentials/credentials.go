// Package credentials declares the Provider interface FromRegistry uses
// to authenticate to a registry, plus a handful of concrete providers.
// Per spec.md §1, the actual token exchange (OAuth2, registry login) is
// out of scope; this package only describes the shape the core needs,
// the same way the teacher's credentials/single package supplies a
// minimal credentials.Helper without implementing a full keychain.
// Grounded on original_source/client/docker_creds_.py's Provider
// hierarchy (Anonymous, Basic, OAuth2).
package credentials

import (
	"context"
	"encoding/base64"

	dcredentials "github.com/docker/docker-credential-helpers/credentials"
	"github.com/pkg/errors"

	"github.com/google/containerregistry/credentials/single"
)

// Provider resolves to an Authorization header value for a request. It
// is the sole seam between this module's registry code and any real
// credential store or token exchange.
type Provider interface {
	// AuthHeader returns the full header value, e.g. "Basic <b64>" or
	// "Bearer <token>", or "" for an anonymous request.
	AuthHeader(ctx context.Context) (string, error)
}

// Anonymous never attaches credentials, for public repositories.
// Grounded on docker_creds_.py's Anonymous provider.
type Anonymous struct{}

func (Anonymous) AuthHeader(ctx context.Context) (string, error) { return "", nil }

// Basic attaches a fixed HTTP Basic credential, grounded on
// docker_creds_.py's Basic provider.
type Basic struct {
	Username, Password string
}

func (b Basic) AuthHeader(ctx context.Context) (string, error) {
	raw := b.Username + ":" + b.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// Refresh produces a fresh header value, given the previous one (empty
// on the first call). It is the seam a real OAuth2 token exchange would
// fill in; this module does not implement that exchange.
type Refresh func(ctx context.Context, previous string) (string, error)

// Refreshable re-resolves its header through refresh on every call,
// generalizing docker_creds_.py's OAuth2 provider (which re-exchanged a
// refresh token for an access token) without performing that exchange
// itself — callers supply the exchange as refresh.
type Refreshable struct {
	refresh Refresh
	cached  string
}

func NewRefreshable(refresh Refresh) *Refreshable {
	return &Refreshable{refresh: refresh}
}

func (r *Refreshable) AuthHeader(ctx context.Context) (string, error) {
	header, err := r.refresh(ctx, r.cached)
	if err != nil {
		return "", errors.Wrap(err, "refreshing credential")
	}
	r.cached = header
	return header, nil
}

// Keychain holds one docker-credential-helpers-shaped entry (server URL,
// username, secret) in the teacher's credentials/single.AuthStore. It
// looks the store up with the store's own server URL, so the entry
// always matches and AuthHeader returns its Basic header; the Anonymous
// branch is taken only if the store reports the credential as not found.
type Keychain struct {
	store *single.AuthStore
}

// NewKeychain builds a Keychain backed by one (serverURL, username,
// secret) entry, as returned by a docker-credential-helpers "get" call.
func NewKeychain(serverURL, username, secret string) *Keychain {
	store := single.AuthStore{ServerURL: serverURL, Username: username, Secret: secret}
	return &Keychain{store: &store}
}

func (k *Keychain) AuthHeader(ctx context.Context) (string, error) {
	username, secret, err := k.store.Get(k.store.ServerURL)
	if err != nil {
		if isNotFound(err) {
			return Anonymous{}.AuthHeader(ctx)
		}
		return "", errors.Wrap(err, "resolving keychain credential")
	}
	return Basic{Username: username, Password: secret}.AuthHeader(ctx)
}

func isNotFound(err error) bool {
	return dcredentials.IsErrCredentialsNotFoundMessage(err.Error())
}
