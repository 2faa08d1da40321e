package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Unified_IdenticalContent(t *testing.T) {
	gen := NewGenerator(3, false)
	content := "line1\nline2\nline3"

	result := gen.Unified(content, content, "expected", "actual")
	assert.True(t, result.Empty())
	assert.Equal(t, 0, result.AddedLines)
	assert.Equal(t, 0, result.DeletedLines)
	assert.Equal(t, "No changes", result.FormatSummary())
}

func TestGenerator_Unified_ChangedLine(t *testing.T) {
	gen := NewGenerator(1, false)
	oldContent := "a\nb\nc\nd\ne\nf"
	newContent := "a\nb\nc\nD\ne\nf"

	result := gen.Unified(oldContent, newContent, "expected", "actual")
	require.False(t, result.Empty())
	assert.Equal(t, 1, result.AddedLines)
	assert.Equal(t, 1, result.DeletedLines)
	assert.Equal(t, "--- expected\n+++ actual\n@@ -3,3 +3,3 @@\n c\n-d\n+D\n e\n", result.Unified)
	assert.Equal(t, "+1 lines, -1 lines", result.FormatSummary())
}

func TestGenerator_Unified_SeparateHunks(t *testing.T) {
	gen := NewGenerator(0, false)
	oldContent := "1\n2\n3\n4\n5"
	newContent := "0\n1\n2\n3\n5"

	result := gen.Unified(oldContent, newContent, "a", "b")
	assert.Equal(t, 2, strings.Count(result.Unified, "@@ -"))
	assert.Contains(t, result.Unified, "+0\n")
	assert.Contains(t, result.Unified, "-4\n")
	assert.Equal(t, 1, result.AddedLines)
	assert.Equal(t, 1, result.DeletedLines)
}

func TestGenerator_Unified_Addition(t *testing.T) {
	gen := NewGenerator(3, false)
	result := gen.Unified("line1\n", "line1\nline2\n", "a", "b")
	assert.Equal(t, 1, result.AddedLines)
	assert.Equal(t, 0, result.DeletedLines)
	assert.Equal(t, "+1 lines", result.FormatSummary())
}

func TestGenerator_ColorizeDisabled(t *testing.T) {
	gen := NewGenerator(3, false)
	text := "--- a\n+++ b\n@@ -1,1 +1,1 @@\n-x\n+y\n"
	assert.Equal(t, text, gen.Colorize(text))
}
