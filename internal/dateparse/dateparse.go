// Package dateparse resolves the free-form date text accepted by
// `restore --sessions-after` into an absolute time, using
// olebedev/when's natural-language rule set.
package dateparse

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse resolves text (e.g. "2026-01-15", "3 days ago", "yesterday")
// relative to now into an absolute UTC time.
func Parse(text string, now time.Time) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t.UTC(), nil
	}
	r, err := parser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not interpret %q as a date or time", text)
	}
	return r.Time.UTC(), nil
}
