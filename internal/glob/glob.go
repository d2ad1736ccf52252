// Package glob implements the shell-style wildcard matcher used by `ls`
// and `get` (spec.md §4.5, C9, testable property P6): `*`, `?`, `[...]`
// and `[a-z]` ranges, plus the Bourne-shell rule that a leading dot in a
// name must be matched explicitly by a leading dot in the pattern.
// Grounded on the teacher's use of the standard library's path-matching
// semantics for directory listing filters (internal/protocol/smb/v2/
// handlers/query_directory.go uses filepath.Match for the same job); this
// package wraps path.Match rather than filepath.Match since NFS names are
// single path components, not OS paths, and adds the leading-dot
// exception filepath.Match does not implement.
package glob

import "path"

// Match reports whether name satisfies pattern under Bourne-shell rules.
// An empty pattern matches every name (P6). A malformed pattern (for
// example an unterminated `[`) never matches anything rather than
// returning an error, since the shell has nowhere useful to report a
// compile error for a filter typed inline on an `ls` command.
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}

	nameHasDot := len(name) > 0 && name[0] == '.'
	patternHasDot := len(pattern) > 0 && pattern[0] == '.'
	if nameHasDot && !patternHasDot {
		return false
	}

	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
