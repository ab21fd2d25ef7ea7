package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Credential supplies the Authorization header value for requests. The
// real credential-resolution logic (keychains, OAuth2 token exchange)
// lives in the credentials package and stays out of this package per
// spec.md §1; RetryableOracle only needs the resulting header.
type Credential interface {
	AuthHeader(ctx context.Context) (string, error)
}

// RetryableOracle is the default Oracle, backed by
// hashicorp/go-retryablehttp so transient 5xx and network failures
// against a registry's /v2/ API are retried automatically. It performs
// no authentication of its own beyond attaching whatever header Cred
// supplies, matching the teacher's pattern of layering a thin client on
// top of an already-authenticated http.RoundTripper.
type RetryableOracle struct {
	BaseURL    string // e.g. "https://gcr.io/v2/my/repo"
	Cred       Credential
	Client     *retryablehttp.Client
	Log        *logrus.Entry
}

// NewRetryableOracle constructs an Oracle for one repository's /v2/ API.
func NewRetryableOracle(baseURL string, cred Credential) *RetryableOracle {
	client := retryablehttp.NewClient()
	client.Logger = nil // logrus.Entry below replaces retryablehttp's own logging
	return &RetryableOracle{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Cred:    cred,
		Client:  client,
		Log:     logrus.WithField("component", "transport.RetryableOracle"),
	}
}

func (o *RetryableOracle) do(ctx context.Context, method, path string, accept []string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, o.BaseURL+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s %s", method, path)
	}
	for _, mt := range accept {
		req.Header.Add("Accept", mt)
	}
	if o.Cred != nil {
		header, err := o.Cred.AuthHeader(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolving credential")
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}
	o.Log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("registry request")
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return resp, nil
}

func (o *RetryableOracle) GetManifest(ctx context.Context, ref string, acceptMediaTypes []string) ([]byte, string, error) {
	resp, err := o.do(ctx, http.MethodGet, "/manifests/"+ref, acceptMediaTypes)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", errors.Wrapf(ErrNotFound, "manifest %s", ref)
	}
	if resp.StatusCode/100 != 2 {
		return nil, "", errors.Errorf("GET manifest %s: unexpected status %d", ref, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading manifest body")
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (o *RetryableOracle) GetBlob(ctx context.Context, digest string) (io.ReadCloser, error) {
	resp, err := o.do(ctx, http.MethodGet, "/blobs/"+digest, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.Errorf("blob %s not found", digest)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.Errorf("GET blob %s: unexpected status %d", digest, resp.StatusCode)
	}
	return resp.Body, nil
}

func (o *RetryableOracle) HeadBlob(ctx context.Context, digest string) (bool, int64, error) {
	resp, err := o.do(ctx, http.MethodHead, "/blobs/"+digest, nil)
	if err != nil {
		return false, -1, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, -1, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, -1, errors.Errorf("HEAD blob %s: unexpected status %d", digest, resp.StatusCode)
	}
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return true, -1, nil
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return false, -1, errors.Wrapf(err, "parsing Content-Length %q", cl)
	}
	return true, size, nil
}

func (o *RetryableOracle) Catalog(ctx context.Context, last string, limit int) ([]string, string, error) {
	path := fmt.Sprintf("/_catalog?n=%d", limit)
	if last != "" {
		path += "&last=" + last
	}
	resp, err := o.do(ctx, http.MethodGet, path, []string{"application/json"})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", errors.Errorf("GET catalog: unexpected status %d", resp.StatusCode)
	}
	var page struct {
		Repositories []string `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", errors.Wrap(err, "decoding catalog page")
	}
	next := parseNextLink(resp.Header.Get("Link"))
	return page.Repositories, next, nil
}

// parseNextLink extracts the "last" query parameter from a
// `Link: </v2/_catalog?last=X&n=N>; rel="next"` header, the registry
// API's pagination cursor.
func parseNextLink(link string) string {
	if link == "" {
		return ""
	}
	const marker = "last="
	i := strings.Index(link, marker)
	if i < 0 {
		return ""
	}
	rest := link[i+len(marker):]
	if j := strings.IndexAny(rest, "&>"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
