package registry

import (
	"fmt"
	"strings"
)

// dockerHub is the canonical name of the public registry.
const dockerHub = "docker.io"

// ParseReference splits a user-supplied image reference into a registry
// host and a repository path. A first segment containing a dot is taken as
// the registry host; otherwise the whole reference is a Docker Hub
// repository. The heuristic misclassifies dotless hosts such as
// localhost:5000, which is the accepted behavior.
func ParseReference(s string) (ImageRef, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		return ImageRef{Registry: dockerHub, Repository: s}, nil
	case 2:
		if strings.Contains(parts[0], ".") {
			return ImageRef{Registry: parts[0], Repository: parts[1]}, nil
		}
		return ImageRef{Registry: dockerHub, Repository: s}, nil
	case 3:
		if strings.Contains(parts[0], ".") {
			return ImageRef{Registry: parts[0], Repository: parts[1] + "/" + parts[2]}, nil
		}
	}
	return ImageRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
}
