package scanner

import (
	"path/filepath"
	"regexp"
	"strings"

	"pdfsift/logger"
)

// patternMatcher applies --include and --exclude. Each pattern is tried as a
// glob against the base name and, when it compiles, as a regular expression
// against the full path.
type patternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func newPatternMatcher(includePatterns, excludePatterns []string) *patternMatcher {
	return &patternMatcher{
		includeGlobs: append([]string(nil), includePatterns...),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: append([]string(nil), excludePatterns...),
		excludeRegex: compileRegex(excludePatterns),
	}
}

func (m *patternMatcher) ShouldInclude(path string) bool {
	if m == nil {
		return true
	}
	if len(m.includeGlobs) > 0 && !matches(path, m.includeGlobs, m.includeRegex) {
		return false
	}
	if len(m.excludeGlobs) > 0 && matches(path, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

func matches(path string, globs []string, regexes []*regexp.Regexp) bool {
	base := filepath.Base(path)
	for _, pattern := range globs {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Debugf("pattern %q is not a regular expression, using it as a glob only", pattern)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// within reports whether path is one of roots or below it. Symlinks are
// resolved when possible so a linked case dir is still recognized.
func within(path string, roots []string) bool {
	absPath := resolve(path)
	if absPath == "" {
		return false
	}
	for _, root := range roots {
		absRoot := resolve(root)
		if absRoot == "" {
			continue
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolve(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return abs
}
