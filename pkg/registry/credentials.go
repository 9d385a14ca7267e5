package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// dockerHubAuthKey is the key under which docker stores Docker Hub
// credentials, kept for compatibility with the pre-v2 registry API.
const dockerHubAuthKey = "https://index.docker.io/v1/"

// dockerConfig mirrors the subset of ~/.docker/config.json we read.
type dockerConfig struct {
	Auths map[string]dockerAuth `json:"auths"`
}

type dockerAuth struct {
	Auth string `json:"auth"`
}

// CredentialStore reads pre-encoded Basic credentials from a docker config
// file. It never writes and tolerates the file being absent.
type CredentialStore struct {
	fs   afero.Fs
	path string
}

// NewCredentialStore creates a store reading from path, or from the
// default ~/.docker/config.json when path is empty.
func NewCredentialStore(fs afero.Fs, path string) *CredentialStore {
	return &CredentialStore{fs: fs, path: path}
}

// Basic returns the raw base64-encoded user:password credential for the
// registry, or "" when none is configured. A missing or unreadable config
// file means no credential, not an error; a present but undecodable file
// is ErrCredentialParse. The returned value must never be logged.
func (s *CredentialStore) Basic(registry string) (string, error) {
	path, err := s.resolvePath()
	if err != nil {
		return "", nil
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", nil
	}

	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCredentialParse, err)
	}

	key := registry
	if registry == dockerHub {
		key = dockerHubAuthKey
	}
	return cfg.Auths[key].Auth, nil
}

// resolvePath expands a leading ~ in the configured path.
func (s *CredentialStore) resolvePath() (string, error) {
	path := s.path
	if path == "" {
		path = "~/.docker/config.json"
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}
