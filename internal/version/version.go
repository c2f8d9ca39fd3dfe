// Package version renders stream versions as HTTP cache validators and
// parses them back. A validator is the decimal stream version wrapped in
// quotes, e.g. `"42"`, so plain ETag/If-Match/If-None-Match plumbing carries
// the optimistic concurrency gate.
package version

import (
	"errors"
	"strconv"
	"strings"
)

// Any is the parsed form of the `*` validator: it matches every version and
// disables the append gate.
const Any int64 = -1

// ErrMalformed is returned for validators that do not carry a version.
var ErrMalformed = errors.New("version: malformed validator")

// Token renders v as an entity tag.
func Token(v int64) string {
	return `"` + strconv.FormatInt(v, 10) + `"`
}

// Parse reads a single validator. Weak validators (`W/"42"`) are accepted
// and treated like their strong form, `*` parses to Any.
func Parse(token string) (int64, error) {
	s := strings.TrimSpace(token)
	if s == "*" {
		return Any, nil
	}
	if rest, ok := strings.CutPrefix(s, "W/"); ok {
		s = rest
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return 0, ErrMalformed
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, ErrMalformed
	}
	return v, nil
}

// Matches reports whether the validator list in header matches current.
// Lists are comma separated per the If-Match and If-None-Match grammar. An
// empty header never matches.
func Matches(header string, current int64) bool {
	if strings.TrimSpace(header) == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		v, err := Parse(part)
		if err != nil {
			continue
		}
		if v == Any || v == current {
			return true
		}
	}
	return false
}
