// Package name parses and validates the four name types used throughout
// this module: registries, repositories, tags, and digests. It is
// grounded on the teacher's docker/reference handling, generalized to the
// simpler grammar used by the Python original (docker_name_.py).
package name

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DefaultRegistry is used when a reference omits a registry hostname,
// matching Docker Hub's historical default.
const DefaultRegistry = "index.docker.io"

// BadName reports a string that fails to parse as one of the name types
// in this package.
type BadName struct {
	Kind  string
	Value string
	Cause error
}

func (e *BadName) Error() string {
	if e.Cause != nil {
		return errors.Wrapf(e.Cause, "invalid %s %q", e.Kind, e.Value).Error()
	}
	return errors.Errorf("invalid %s %q", e.Kind, e.Value).Error()
}

func (e *BadName) Unwrap() error { return e.Cause }

func badName(kind, value string, cause error) error {
	return &BadName{Kind: kind, Value: value, Cause: cause}
}

var (
	registryComponentRE = regexp.MustCompile(`^[a-zA-Z0-9]+((\.|-+)[a-zA-Z0-9]+)*$`)
	repositoryPartRE    = regexp.MustCompile(`^[a-z0-9]+((\.|_|__|-+)[a-z0-9]+)*$`)
	tagRE               = regexp.MustCompile(`^[\w][\w.-]{0,127}$`)
)

const maxNameLength = 255

// Registry is the hostname (optionally with a port) that a Repository
// belongs to, e.g. "gcr.io" or "localhost:5000".
type Registry struct {
	name string
}

// NewRegistry validates and constructs a Registry.
func NewRegistry(name string) (Registry, error) {
	if name == "" {
		return Registry{name: DefaultRegistry}, nil
	}
	host := name
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	for _, part := range strings.Split(host, ".") {
		if part == "" || !registryComponentRE.MatchString(part) {
			if host != "localhost" {
				return Registry{}, badName("registry", name, nil)
			}
		}
	}
	return Registry{name: name}, nil
}

func (r Registry) String() string { return r.name }

// Scope returns the OAuth2-style resource scope string historically used
// to request a token covering this registry, e.g. "registry:catalog:*".
func (r Registry) Scope(action string) string {
	return "registry:catalog:" + action
}

// Repository is a registry plus a slash-separated repository path, e.g.
// "gcr.io/project/image".
type Repository struct {
	registry Registry
	repo     string
}

// NewRepository validates repo as a slash-separated repository path under
// reg and constructs a Repository.
func NewRepository(reg Registry, repo string) (Repository, error) {
	if repo == "" {
		return Repository{}, badName("repository", repo, errors.New("empty repository"))
	}
	if len(reg.String())+len(repo) > maxNameLength {
		return Repository{}, badName("repository", repo, errors.New("name too long"))
	}
	for _, part := range strings.Split(repo, "/") {
		if !repositoryPartRE.MatchString(part) {
			return Repository{}, badName("repository", repo, errors.Errorf("invalid path component %q", part))
		}
	}
	return Repository{registry: reg, repo: repo}, nil
}

// ParseRepository splits a possibly-registry-qualified repository string:
// s may be a bare "library/ubuntu"-style path (registry defaults to
// DefaultRegistry) or a fully qualified "gcr.io/project/image".
func ParseRepository(s string) (Repository, error) {
	reg, repo := splitRegistry(s)
	r, err := NewRegistry(reg)
	if err != nil {
		return Repository{}, err
	}
	return NewRepository(r, repo)
}

func splitRegistry(s string) (registry, repo string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 && (strings.ContainsAny(parts[0], ".:") || parts[0] == "localhost") {
		return parts[0], parts[1]
	}
	return "", s
}

func (r Repository) Registry() Registry { return r.registry }
func (r Repository) RepoStr() string    { return r.repo }

func (r Repository) String() string {
	if r.registry.String() == DefaultRegistry {
		return r.repo
	}
	return r.registry.String() + "/" + r.repo
}

// Scope returns the OAuth2-style resource scope string for an action on
// this repository, e.g. "repository:library/ubuntu:pull".
func (r Repository) Scope(action string) string {
	return "repository:" + r.repo + ":" + action
}

// Tag identifies a repository and a mutable tag name, e.g. "ubuntu:latest".
type Tag struct {
	repo Repository
	tag  string
}

// ParseTag parses "[registry/]repo[:tag]", defaulting tag to "latest".
func ParseTag(s string) (Tag, error) {
	repoPart, tagPart := s, "latest"
	if i := strings.LastIndex(s, ":"); i >= 0 && !strings.Contains(s[i:], "/") {
		repoPart, tagPart = s[:i], s[i+1:]
	}
	repo, err := ParseRepository(repoPart)
	if err != nil {
		return Tag{}, err
	}
	if !tagRE.MatchString(tagPart) {
		return Tag{}, badName("tag", s, errors.Errorf("invalid tag component %q", tagPart))
	}
	return Tag{repo: repo, tag: tagPart}, nil
}

func NewTag(repo Repository, tag string) (Tag, error) {
	if !tagRE.MatchString(tag) {
		return Tag{}, badName("tag", tag, nil)
	}
	return Tag{repo: repo, tag: tag}, nil
}

func (t Tag) Repository() Repository { return t.repo }
func (t Tag) TagStr() string         { return t.tag }
func (t Tag) String() string         { return t.repo.String() + ":" + t.tag }

// Equal compares tags by repository path and tag string, ignoring the
// registry hostname (a docker.io tag and an index.docker.io tag of the
// same repo/tag name name the same logical reference).
func (t Tag) Equal(o Tag) bool {
	return t.repo.repo == o.repo.repo && t.tag == o.tag
}

// Digest identifies a repository and an immutable content digest, e.g.
// "ubuntu@sha256:abcd...".
type Digest struct {
	repo   Repository
	digest string
}

var digestRE = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)

// ParseDigest parses "[registry/]repo@sha256:<hex>".
func ParseDigest(s string) (Digest, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return Digest{}, badName("digest", s, errors.New("missing '@'"))
	}
	repo, err := ParseRepository(parts[0])
	if err != nil {
		return Digest{}, err
	}
	if !digestRE.MatchString(parts[1]) {
		return Digest{}, badName("digest", s, errors.Errorf("invalid digest component %q", parts[1]))
	}
	return Digest{repo: repo, digest: parts[1]}, nil
}

func NewDigest(repo Repository, digest string) (Digest, error) {
	if !digestRE.MatchString(digest) {
		return Digest{}, badName("digest", digest, nil)
	}
	return Digest{repo: repo, digest: digest}, nil
}

func (d Digest) Repository() Repository { return d.repo }
func (d Digest) DigestStr() string      { return d.digest }
func (d Digest) String() string         { return d.repo.String() + "@" + d.digest }

// Equal compares digests by repository path and digest string, ignoring
// the registry hostname, for the same reason as Tag.Equal.
func (d Digest) Equal(o Digest) bool {
	return d.repo.repo == o.repo.repo && d.digest == o.digest
}
