// Package s3url parses the `s3://bucket/prefix` URLs accepted by
// --base, into a bucket name and an object-key prefix with a single
// trailing slash.
package s3url

import (
	"fmt"
	"net/url"
	"strings"
)

// Parse splits raw into a bucket and a key prefix. An empty or missing
// path yields an empty prefix.
func Parse(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("parsing %q: scheme must be s3, got %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("parsing %q: missing bucket", raw)
	}

	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// Join appends path segments to prefix, always separated by exactly one
// "/", never a leading one.
func Join(prefix string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(prefix, "/"))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(s)
	}
	return strings.TrimPrefix(b.String(), "/")
}
