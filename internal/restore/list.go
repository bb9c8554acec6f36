package restore

import (
	"context"
	"sort"
	"strings"

	"github.com/sjawhar/devenv/internal/objectstore"
	"github.com/sjawhar/devenv/internal/s3url"
)

// ListBackups enumerates the backup names available for machine under
// basePrefix/{machine}/, by listing every object under that prefix and
// collecting the unique first path segment after it — the delimited
// "directory" listing the `list-backups` verb needs, built
// on top of Client.List's flat enumeration since the Client interface
// has no native delimiter support.
func ListBackups(ctx context.Context, store objectstore.Client, basePrefix, machine string) ([]string, error) {
	prefix := s3url.Join(basePrefix, machine) + "/"
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var names []string
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, prefix)
		if rest == "" {
			continue
		}
		name := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			name = rest[:i]
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
