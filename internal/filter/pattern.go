package filter

import (
	"regexp"
	"strings"
)

// compiledPattern is a glob compiled down to a regexp.
type compiledPattern struct {
	re      *regexp.Regexp
	dirOnly bool // pattern ended with /
}

// compilePattern converts an rsync-style glob into a compiled matcher.
// A leading / anchors the pattern at the tree root; a pattern containing
// a / anywhere is also anchored, per rsync rules. A trailing / restricts
// the pattern to directories.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{}

	if rest, ok := strings.CutSuffix(pattern, "/"); ok {
		cp.dirOnly = true
		pattern = rest
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	reStr := translateGlob(pattern)
	if anchored {
		reStr = "^" + reStr + "$"
	} else {
		// Unanchored patterns match the basename or any path suffix.
		reStr = "(^|/)" + reStr + "$"
	}

	var err error
	if cp.re, err = regexp.Compile(reStr); err != nil {
		return nil, err
	}
	return cp, nil
}

// match tests relPath against the pattern. Dir-only patterns reject
// regular files before the regexp runs.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// translateGlob converts a glob pattern to a regular expression string.
// * matches within a path component, ** crosses separators, ? matches a
// single non-separator byte, and [...] classes pass through with ! mapped
// to ^ for negation.
func translateGlob(pattern string) string {
	var b strings.Builder
	var lit []byte
	flush := func() {
		if len(lit) > 0 {
			b.WriteString(regexp.QuoteMeta(string(lit)))
			lit = lit[:0]
		}
	}

	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case '*':
			flush()
			switch {
			case strings.HasPrefix(pattern[i:], "**/"):
				b.WriteString("(.*/)?")
				i += 3
			case strings.HasPrefix(pattern[i:], "**"):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			flush()
			b.WriteString("[^/]")
			i++
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				// Unterminated class: treat the bracket literally.
				lit = append(lit, '[')
				i++
				break
			}
			flush()
			cls := pattern[i+1 : end]
			if rest, ok := strings.CutPrefix(cls, "!"); ok {
				cls = "^" + rest
			}
			b.WriteString("[" + cls + "]")
			i = end + 1
		default:
			lit = append(lit, pattern[i])
			i++
		}
	}
	flush()
	return b.String()
}

// classEnd returns the index of the ] closing the class opened at start,
// or -1 if the class never closes. A ] directly after [ or [! is a
// literal member of the class.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && pattern[j] == '!' {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	for j < len(pattern) && pattern[j] != ']' {
		j++
	}
	if j >= len(pattern) {
		return -1
	}
	return j
}
