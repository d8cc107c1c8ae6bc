package sync

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// defaultIgnorePatterns is the set applied when a sync root carries no
// .eesignore file (spec.md §4.5).
var defaultIgnorePatterns = []string{
	"node_modules",
	".git",
	".DS_Store",
	"*.log",
	".env",
	".env.*",
	"dist",
	"build",
	"coverage",
	".next",
	".nuxt",
	".cache",
}

type ignoreRule struct {
	negate     bool
	segmentOnly bool
	re         *regexp.Regexp
}

// IgnoreMatcher is a compiled .eesignore pattern set: a path is ignored
// iff at least one positive rule matches and no negative rule matches.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// LoadIgnoreMatcher reads root/.eesignore if present, falling back to
// defaultIgnorePatterns otherwise.
func LoadIgnoreMatcher(root string) (*IgnoreMatcher, error) {
	f, err := os.Open(filepath.Join(root, ".eesignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return compileIgnorePatterns(defaultIgnorePatterns)
		}
		return nil, err
	}
	defer f.Close()
	return ParseIgnoreFile(f)
}

// ParseIgnoreFile compiles a .eesignore file's contents (one pattern per
// line, "#" comments, blank lines skipped).
func ParseIgnoreFile(r io.Reader) (*IgnoreMatcher, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return compileIgnorePatterns(patterns)
}

func compileIgnorePatterns(patterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{rules: make([]ignoreRule, 0, len(patterns))}
	for _, p := range patterns {
		negate := false
		if strings.HasPrefix(p, "!") {
			negate = true
			p = p[1:]
		}

		segmentOnly := !strings.Contains(p, "/")
		pattern := p
		if strings.HasSuffix(pattern, "/") {
			pattern = strings.TrimSuffix(pattern, "/")
			segmentOnly = true
		}

		re, err := regexp.Compile("^" + globToRegexp(pattern) + "$")
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, ignoreRule{negate: negate, segmentOnly: segmentOnly, re: re})
	}
	return m, nil
}

// globToRegexp translates the glob dialect spec.md §4.5 defines (*, **,
// ?) into an anchored regexp fragment. "*" matches any run of
// non-separator characters, "**" matches across separators, "?" matches
// exactly one non-separator character.
func globToRegexp(glob string) string {
	var b strings.Builder
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(`.*`)
				i++
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`[^/]`)
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

// ShouldIgnore reports whether relPath (slash-separated, relative to the
// sync root) is ignored: at least one positive rule matches and no
// negative rule matches, with negations evaluated globally per spec.md
// §4.5 regardless of pattern order.
func (m *IgnoreMatcher) ShouldIgnore(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	segments := strings.Split(relPath, "/")

	matched := false
	for _, rule := range m.rules {
		if rule.matches(relPath, segments) {
			if rule.negate {
				return false
			}
			matched = true
		}
	}
	return matched
}

func (r ignoreRule) matches(full string, segments []string) bool {
	if r.segmentOnly {
		for _, seg := range segments {
			if r.re.MatchString(seg) {
				return true
			}
		}
		return false
	}
	return r.re.MatchString(full)
}
