package check

import (
	"fmt"
	"regexp"
)

// IgnoreList is an explicit allow-list of message patterns that checks
// disregard. The zero value ignores nothing.
type IgnoreList struct {
	patterns []*regexp.Regexp
}

// NewIgnoreList compiles patterns. Empty patterns are rejected because they
// would match every message.
func NewIgnoreList(patterns ...string) (IgnoreList, error) {
	var l IgnoreList
	for _, p := range patterns {
		if p == "" {
			return IgnoreList{}, fmt.Errorf("ignore pattern must not be empty")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return IgnoreList{}, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		l.patterns = append(l.patterns, re)
	}
	return l, nil
}

// MustIgnore is NewIgnoreList that panics on a bad pattern.
func MustIgnore(patterns ...string) IgnoreList {
	l, err := NewIgnoreList(patterns...)
	if err != nil {
		panic(err)
	}
	return l
}

// Matches reports whether msg is ignored.
func (l IgnoreList) Matches(msg string) bool {
	for _, re := range l.patterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

// Filter returns the messages that are not ignored, in order.
func (l IgnoreList) Filter(msgs []string) []string {
	var kept []string
	for _, m := range msgs {
		if !l.Matches(m) {
			kept = append(kept, m)
		}
	}
	return kept
}

// Patterns returns the source patterns.
func (l IgnoreList) Patterns() []string {
	out := make([]string, len(l.patterns))
	for i, re := range l.patterns {
		out[i] = re.String()
	}
	return out
}
