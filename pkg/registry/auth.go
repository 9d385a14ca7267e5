package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmgilman/docker-tags/internal/slogger"
)

// tokenResponse is the token realm's answer. Other fields are ignored.
type tokenResponse struct {
	Token string `json:"token"`
}

// authChallenge is a parsed WWW-Authenticate header value.
type authChallenge struct {
	scheme string
	realm  string
	params map[string]string
}

// parseChallenge splits a header of shape `<scheme> k1="v1",k2="v2",...`
// into its scheme, realm and remaining parameters.
func parseChallenge(header string) (authChallenge, error) {
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok {
		return authChallenge{}, fmt.Errorf("%w: %q", ErrAuthChallenge, header)
	}

	params := make(map[string]string)
	for _, param := range strings.Split(rest, ",") {
		if k, v, ok := strings.Cut(param, "="); ok {
			params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
		}
	}

	realm, ok := params["realm"]
	if !ok {
		return authChallenge{}, fmt.Errorf("%w: no realm in %q", ErrAuthChallenge, header)
	}
	delete(params, "realm")

	return authChallenge{scheme: scheme, realm: realm, params: params}, nil
}

// negotiate answers a WWW-Authenticate challenge by requesting a token from
// the advertised realm, forwarding the remaining challenge parameters
// (typically service and scope) as query arguments. A Basic credential from
// the docker config is attached when one exists for the registry. Returns
// the challenge scheme and the issued token.
func (c *client) negotiate(ctx context.Context, registry, header string) (string, string, error) {
	challenge, err := parseChallenge(header)
	if err != nil {
		return "", "", err
	}

	u, err := url.Parse(challenge.realm)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad realm URL %q", ErrAuthChallenge, challenge.realm)
	}
	q := u.Query()
	for k, v := range challenge.params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: build token request for %s: %w", ErrAuthRequest, u, err)
	}

	basic, err := c.creds.Basic(registry)
	if err != nil {
		return "", "", err
	}
	if basic != "" {
		req.Header.Set("Authorization", "Basic "+basic)
	}

	slogger.L(ctx).Debug("requesting token", "realm", u.Redacted(), "scheme", challenge.scheme)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: fetch token from %s: %w", ErrAuthRequest, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: %s", ErrAuthRequest, resp.Status)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", "", fmt.Errorf("%w: parse token response from %s: %w", ErrDecode, u, err)
	}

	return challenge.scheme, token.Token, nil
}
