// Package agentsync decides which files under an agent product's data
// directory are eligible for backup and restore, applying one of two
// inclusion rules depending on the product. Both rules operate purely
// on a slash-separated path relative to the agent directory's root;
// neither touches the filesystem.
package agentsync

import "strings"

// WhitelistA is the path whitelist for agent product A's directory
// (top-level configuration, history, projects, plans, todos,
// file-history, and two plugin manifests). Credential files are
// deliberately absent.
var WhitelistA = []string{
	"settings.json",
	"history.jsonl",
	"projects",
	"plans",
	"todos",
	"file-history",
	"plugins/config.json",
	"plugins/repos.json",
}

// PrefixesB is the directory-prefix whitelist for agent product B's
// storage directory.
var PrefixesB = map[string]bool{
	"session": true,
	"message": true,
	"part":    true,
	"project": true,
	"todo":    true,
}

// IncludeA reports whether relPath (slash-separated, relative to the
// agent A directory root) is eligible under the path-whitelist rule: it
// must equal a whitelisted path exactly, or begin with a whitelisted
// path followed by "/".
func IncludeA(relPath string) bool {
	for _, allowed := range WhitelistA {
		if relPath == allowed || strings.HasPrefix(relPath, allowed+"/") {
			return true
		}
	}
	return false
}

// IncludeB reports whether relPath (slash-separated, relative to the
// agent B storage root) is eligible under the directory-prefix rule:
// its first path segment must be in PrefixesB.
func IncludeB(relPath string) bool {
	first := relPath
	if idx := strings.IndexByte(relPath, '/'); idx >= 0 {
		first = relPath[:idx]
	}
	return PrefixesB[first]
}
