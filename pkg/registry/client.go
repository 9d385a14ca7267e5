package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/afero"

	"github.com/jmgilman/docker-tags/internal/slogger"
)

// pageSize is the n= parameter sent with every tags/list request. A page
// shorter than this terminates pagination.
const pageSize = 100

// dockerHubRegistry is the host actually serving the v2 API for docker.io.
const dockerHubRegistry = "registry-1.docker.io"

// tagsResponse is a single tags/list page. Other fields are ignored.
type tagsResponse struct {
	Tags []string `json:"tags"`
}

// client implements Client over net/http.
type client struct {
	config ClientConfig
	http   *http.Client
	creds  *CredentialStore
}

// NewClient creates a registry client with the given configuration.
func NewClient(cfg ClientConfig) Client {
	return &client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		creds:  NewCredentialStore(afero.NewOsFs(), cfg.DockerConfigPath),
	}
}

// FetchTags pages through /v2/<repo>/tags/list and returns all tags in
// server order. On the first unauthenticated 401 carrying a challenge it
// negotiates a bearer token and re-issues the same request; the token then
// authorizes every following page. The token lives only for this call.
func (c *client) FetchTags(ctx context.Context, ref ImageRef) ([]Tag, error) {
	base := c.baseURL(ref)
	log := slogger.L(ctx)

	var tags []Tag
	var token string
	next := base
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", next, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		log.Debug("fetching tags page", "url", next, "authenticated", token != "")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch tags from %s: %w", next, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			// fall through to page decoding below

		case http.StatusUnauthorized:
			resp.Body.Close()
			if token != "" {
				// Public registries answer 401 for missing repositories
				// as well as denied access.
				return nil, fmt.Errorf("%w: %w", ErrNotFound,
					fmt.Errorf("got HTTP %d with authentication token", resp.StatusCode))
			}
			header := resp.Header.Get("WWW-Authenticate")
			if header == "" {
				return nil, &StatusError{Code: resp.StatusCode}
			}
			_, token, err = c.negotiate(ctx, ref.Registry, header)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			continue

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNotFound

		default:
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		}

		var page tagsResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: parse tags from %s: %w", ErrDecode, next, err)
		}

		for _, name := range page.Tags {
			tags = append(tags, Tag{Name: name})
		}

		// A short page, including an empty one, is the last page. The
		// empty check must come first so no cursor element is read.
		if len(page.Tags) < pageSize {
			break
		}

		// The cursor is applied to the base URL each iteration so last=
		// never accumulates across pages.
		next, err = withLast(base, page.Tags[len(page.Tags)-1])
		if err != nil {
			return nil, err
		}
	}

	return tags, nil
}

// baseURL builds the first-page URL, applying the Docker Hub host and
// library/ namespace rewrites.
func (c *client) baseURL(ref ImageRef) string {
	host := ref.Registry
	if host == dockerHub {
		host = dockerHubRegistry
	}
	repo := ref.Repository
	if ref.Registry == dockerHub && !strings.Contains(repo, "/") {
		repo = "library/" + repo
	}
	scheme := "https"
	if c.config.PlainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/tags/list?n=%d", scheme, host, repo, pageSize)
}

// withLast returns base with a fresh last=<tag> query parameter.
func withLast(base, last string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("last", last)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
