package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ggcrname "github.com/google/go-containerregistry/pkg/name"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{})
	require.NotNil(t, client)
}

func TestClient_baseURL(t *testing.T) {
	c := &client{}

	t.Run("docker.io is rewritten to registry-1", func(t *testing.T) {
		url := c.baseURL(ImageRef{Registry: "docker.io", Repository: "nginx"})
		assert.Equal(t, "https://registry-1.docker.io/v2/library/nginx/tags/list?n=100", url)
	})

	t.Run("namespaced Hub repository keeps its namespace", func(t *testing.T) {
		url := c.baseURL(ImageRef{Registry: "docker.io", Repository: "prom/prometheus"})
		assert.Equal(t, "https://registry-1.docker.io/v2/prom/prometheus/tags/list?n=100", url)
	})

	t.Run("other registries pass through", func(t *testing.T) {
		url := c.baseURL(ImageRef{Registry: "quay.io", Repository: "prometheus/prometheus"})
		assert.Equal(t, "https://quay.io/v2/prometheus/prometheus/tags/list?n=100", url)
	})
}

// writePage answers a tags/list request with the given tag names.
func writePage(t *testing.T, w http.ResponseWriter, names []string) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"name": "test/image", "tags": names}))
}

// numberedTags generates n sequential tag names starting at offset.
func numberedTags(offset, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("tag%04d", offset+i)
	}
	return names
}

func refFor(t *testing.T, server *httptest.Server) ImageRef {
	t.Helper()
	return ImageRef{
		Registry:   strings.TrimPrefix(server.URL, "http://"),
		Repository: "test/image",
	}
}

func TestClient_FetchTags(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches a single short page without auth", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/test/image/tags/list", r.URL.Path)
			assert.Empty(t, r.Header.Get("Authorization"))
			writePage(t, w, []string{"latest", "v1.0.0"})
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		tags, err := c.FetchTags(ctx, refFor(t, server))

		require.NoError(t, err)
		assert.Equal(t, []Tag{{Name: "latest"}, {Name: "v1.0.0"}}, tags)
	})

	t.Run("negotiates a token on 401 and retries the same page", func(t *testing.T) {
		var mux http.ServeMux
		server := httptest.NewServer(&mux)
		defer server.Close()

		var tokenRequests int
		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			assert.Equal(t, "registry.example.com", r.URL.Query().Get("service"))
			assert.Equal(t, "repository:test/image:pull", r.URL.Query().Get("scope"))
			fmt.Fprint(w, `{"token": "bearer-token"}`)
		})

		var listRequests int
		mux.HandleFunc("/v2/test/image/tags/list", func(w http.ResponseWriter, r *http.Request) {
			listRequests++
			if r.Header.Get("Authorization") != "Bearer bearer-token" {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(
					`Bearer realm="%s/token",service="registry.example.com",scope="repository:test/image:pull"`,
					server.URL))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writePage(t, w, []string{"v1.0.0"})
		})

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		tags, err := c.FetchTags(ctx, refFor(t, server))

		require.NoError(t, err)
		assert.Equal(t, []Tag{{Name: "v1.0.0"}}, tags)
		assert.Equal(t, 1, tokenRequests)
		assert.Equal(t, 2, listRequests)
	})

	t.Run("paginates with a fresh last cursor each page", func(t *testing.T) {
		pages := [][]string{
			numberedTags(0, 100),
			numberedTags(100, 100),
			numberedTags(200, 37),
		}
		var requests []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests = append(requests, r.URL.RawQuery)
			q := r.URL.Query()
			assert.Equal(t, "100", q.Get("n"))

			switch q.Get("last") {
			case "":
				writePage(t, w, pages[0])
			case "tag0099":
				writePage(t, w, pages[1])
			case "tag0199":
				writePage(t, w, pages[2])
			default:
				t.Errorf("unexpected cursor %q", q.Get("last"))
			}
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		tags, err := c.FetchTags(ctx, refFor(t, server))

		require.NoError(t, err)
		require.Len(t, tags, 237)
		assert.Equal(t, "tag0000", tags[0].Name)
		assert.Equal(t, "tag0236", tags[236].Name)
		require.Len(t, requests, 3)
		for i, q := range requests[1:] {
			assert.Equal(t, 1, strings.Count(q, "last="), "request %d: %s", i+1, q)
		}
	})

	t.Run("an empty page terminates pagination", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("last") == "" {
				writePage(t, w, numberedTags(0, 100))
				return
			}
			writePage(t, w, nil)
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		tags, err := c.FetchTags(ctx, refFor(t, server))

		require.NoError(t, err)
		assert.Len(t, tags, 100)
	})

	t.Run("an empty first page is zero tags", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writePage(t, w, nil)
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		tags, err := c.FetchTags(ctx, refFor(t, server))

		require.NoError(t, err)
		assert.Empty(t, tags)
	})

	t.Run("404 is Image not found", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "Image not found", err.Error())
	})

	t.Run("401 with a held token is Image not found", func(t *testing.T) {
		var mux http.ServeMux
		server := httptest.NewServer(&mux)
		defer server.Close()

		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"token": "bearer-token"}`)
		})
		mux.HandleFunc("/v2/test/image/tags/list", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s/token"`, server.URL))
			w.WriteHeader(http.StatusUnauthorized)
		})

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		require.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "got HTTP 401 with authentication token")
	})

	t.Run("failed negotiation is Image not found with a cause", func(t *testing.T) {
		var mux http.ServeMux
		server := httptest.NewServer(&mux)
		defer server.Close()

		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		mux.HandleFunc("/v2/test/image/tags/list", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s/token"`, server.URL))
			w.WriteHeader(http.StatusUnauthorized)
		})

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		require.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrAuthRequest)
	})

	t.Run("401 without a challenge is a status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	})

	t.Run("unexpected status is a status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
		assert.Equal(t, "HTTP 500 Internal Server Error", err.Error())
	})

	t.Run("malformed page body is a decode error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		_, err := c.FetchTags(ctx, refFor(t, server))

		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("idempotent across repeated fetches", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writePage(t, w, []string{"latest", "v1.0.0", "v1.1.0"})
		}))
		defer server.Close()

		c := testClient(afero.NewMemMapFs(), "/missing/config.json")
		first, err := c.FetchTags(ctx, refFor(t, server))
		require.NoError(t, err)
		second, err := c.FetchTags(ctx, refFor(t, server))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestClient_FetchTags_AgainstRegistryImpl(t *testing.T) {
	ctx := context.Background()

	// Run the client against a real in-memory v2 registry implementation.
	reg := ggcrregistry.New()
	server := httptest.NewServer(reg)
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	for _, tag := range []string{"v1.0.0", "v1.1.0", "latest"} {
		img, err := random.Image(1024, 1)
		require.NoError(t, err)

		name, err := ggcrname.ParseReference(fmt.Sprintf("%s/test/image:%s", host, tag))
		require.NoError(t, err)
		require.NoError(t, remote.Write(name, img))
	}

	c := testClient(afero.NewMemMapFs(), "/missing/config.json")
	tags, err := c.FetchTags(ctx, ImageRef{Registry: host, Repository: "test/image"})

	require.NoError(t, err)
	names := tagNames(tags)
	assert.ElementsMatch(t, []string{"v1.0.0", "v1.1.0", "latest"}, names)
}
