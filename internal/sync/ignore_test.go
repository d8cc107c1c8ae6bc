package sync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreMatcher_DefaultSet(t *testing.T) {
	m, err := compileIgnorePatterns(defaultIgnorePatterns)
	require.NoError(t, err)

	assert.True(t, m.ShouldIgnore("node_modules/react/index.js"))
	assert.True(t, m.ShouldIgnore(".git/HEAD"))
	assert.True(t, m.ShouldIgnore("app.log"))
	assert.False(t, m.ShouldIgnore("src/main.go"))
}

func TestIgnoreMatcher_TrailingSlashMatchesSegment(t *testing.T) {
	m, err := compileIgnorePatterns([]string{"build/"})
	require.NoError(t, err)

	assert.True(t, m.ShouldIgnore("build/output.js"))
	assert.True(t, m.ShouldIgnore("app/build/output.js"))
	assert.False(t, m.ShouldIgnore("rebuild/output.js"))
}

func TestIgnoreMatcher_GlobStarAndDoubleStarAndQuestionMark(t *testing.T) {
	m, err := compileIgnorePatterns([]string{"src/*.tmp", "vendor/**/testdata", "a?c"})
	require.NoError(t, err)

	assert.True(t, m.ShouldIgnore("src/file.tmp"))
	assert.False(t, m.ShouldIgnore("src/nested/file.tmp"))
	assert.True(t, m.ShouldIgnore("vendor/pkg/sub/testdata"))
	assert.True(t, m.ShouldIgnore("abc"))
	assert.False(t, m.ShouldIgnore("abbc"))
}

func TestIgnoreMatcher_NegationOverridesPositive(t *testing.T) {
	m, err := compileIgnorePatterns([]string{"*.log", "!important.log"})
	require.NoError(t, err)

	assert.True(t, m.ShouldIgnore("debug.log"))
	assert.False(t, m.ShouldIgnore("important.log"), "negation must override the positive match regardless of order")
}

func TestIgnoreMatcher_NegationAppliesGlobally(t *testing.T) {
	// Negation listed before the positive it un-ignores still overrides,
	// per spec.md §4.5: "negative patterns are processed globally ...
	// not only within a scope."
	m, err := compileIgnorePatterns([]string{"!keep.log", "*.log"})
	require.NoError(t, err)

	assert.False(t, m.ShouldIgnore("keep.log"))
	assert.True(t, m.ShouldIgnore("other.log"))
}

func TestParseIgnoreFile_SkipsCommentsAndBlankLines(t *testing.T) {
	src := "# comment\n\nnode_modules\n  \n*.tmp\n"
	m, err := ParseIgnoreFile(strings.NewReader(src))
	require.NoError(t, err)

	assert.True(t, m.ShouldIgnore("node_modules/pkg"))
	assert.True(t, m.ShouldIgnore("a/b/file.tmp"))
	assert.False(t, m.ShouldIgnore("README.md"))
}
