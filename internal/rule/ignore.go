package rule

import (
	"fmt"
	"regexp"
	"strings"
)

// URLMatcher matches URLs against ignore patterns. A pattern is one of:
//   - /regexp/, matched anywhere in the URL
//   - a glob containing * or ?, matched against the whole URL, where *
//     crosses slashes
//   - any other string, matched exactly
type URLMatcher struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// CompileURLMatcher compiles patterns. Empty patterns are skipped.
func CompileURLMatcher(patterns []string) (*URLMatcher, error) {
	m := &URLMatcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case len(p) > 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/"):
			re, err := regexp.Compile(p[1 : len(p)-1])
			if err != nil {
				return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
			}
			m.patterns = append(m.patterns, re)
		case strings.ContainsAny(p, "*?"):
			m.patterns = append(m.patterns, globToRegexp(p))
		default:
			m.exact[p] = struct{}{}
		}
	}
	return m, nil
}

func globToRegexp(glob string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.MustCompile(b.String())
}

// Match reports whether s matches any pattern. A nil matcher matches nothing.
func (m *URLMatcher) Match(s string) bool {
	if m == nil || s == "" {
		return false
	}
	if _, ok := m.exact[s]; ok {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled patterns.
func (m *URLMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.exact) + len(m.patterns)
}
