// Package registry implements a client for the OCI/Docker v2 distribution
// API that lists the tags of a repository. It parses image references,
// negotiates the token authentication flow when the registry challenges a
// request, and paginates through /v2/<repo>/tags/list.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for registry operations.
var (
	// ErrInvalidReference is returned when an image reference cannot be
	// split into a registry and repository. The message is stable.
	ErrInvalidReference = errors.New("Invalid image format")

	// ErrNotFound is returned when the repository does not exist. Public
	// registries answer 401 for both missing repositories and denied
	// access, so a 401 received while already holding a token maps here
	// too. The message is stable.
	ErrNotFound = errors.New("Image not found")

	// ErrCredentialParse is returned when the docker config file exists
	// but cannot be decoded.
	ErrCredentialParse = errors.New("failed to parse docker config")

	// ErrAuthChallenge is returned when a WWW-Authenticate header is
	// malformed or names no realm.
	ErrAuthChallenge = errors.New("invalid authentication challenge")

	// ErrAuthRequest is returned when the token realm refuses or cannot
	// be reached.
	ErrAuthRequest = errors.New("failed to authenticate")

	// ErrDecode is returned when a well-formed HTTP response carries a
	// body that does not match the expected shape.
	ErrDecode = errors.New("failed to decode response")
)

// StatusError reports a non-success HTTP status that has no more specific
// mapping in the taxonomy above.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// ImageRef identifies a repository within a registry. Registry is a bare
// DNS host (no scheme, no path); Repository is one or more slash-separated
// segments, stored exactly as supplied. The library/ rewrite for Docker Hub
// happens only when URLs are built.
type ImageRef struct {
	Registry   string
	Repository string
}

func (r ImageRef) String() string {
	return r.Registry + "/" + r.Repository
}

// Tag is a named pointer to a manifest within a repository.
type Tag struct {
	Name string
}

func (t Tag) String() string {
	return t.Name
}

// ClientConfig configures the registry client.
type ClientConfig struct {
	// Timeout bounds each outbound HTTP request. Zero means no timeout.
	Timeout time.Duration

	// DockerConfigPath overrides the credential file location.
	// Defaults to ~/.docker/config.json.
	DockerConfigPath string

	// PlainHTTP contacts registries over http instead of https. Used by
	// tests against local registries.
	PlainHTTP bool
}

// Client lists tags from OCI registries.
type Client interface {
	// FetchTags returns every tag of the referenced repository in server
	// order. Sorting is the caller's concern, see SortTags.
	FetchTags(ctx context.Context, ref ImageRef) ([]Tag, error)
}
