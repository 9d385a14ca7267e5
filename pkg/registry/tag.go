package registry

import (
	"slices"
	"strings"

	"github.com/blang/semver/v4"
)

// Compare defines a total order over tags: tags parsing as semantic
// versions (after stripping one leading "v") come first, newest version
// first; everything else follows in byte-wise lexicographic order of the
// unmodified names. Returns a negative value when a sorts before b.
func Compare(a, b Tag) int {
	av, aerr := semver.Parse(strings.TrimPrefix(a.Name, "v"))
	bv, berr := semver.Parse(strings.TrimPrefix(b.Name, "v"))
	switch {
	case aerr == nil && berr == nil:
		return bv.Compare(av) // newest first
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

// SortTags sorts tags in place using Compare.
func SortTags(tags []Tag) {
	slices.SortFunc(tags, Compare)
}
