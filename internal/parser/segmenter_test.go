package parser

import (
	"strings"
	"testing"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentBasicSections(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 4096, MinTokens: 1, MergePeers: true})

	pieces := s.Segment("# A\ntext1\n\n## B\ntext2", nil)
	require.Len(t, pieces, 2)

	assert.Equal(t, "# A\ntext1", pieces[0].Content)
	assert.Equal(t, "A", pieces[0].Metadata[models.MetaSectionPath])
	assert.Equal(t, []string{"A"}, pieces[0].Metadata[models.MetaHeaderHierarchy])

	assert.Equal(t, "## B\ntext2", pieces[1].Content)
	assert.Equal(t, "A > B", pieces[1].Metadata[models.MetaSectionPath])
	assert.Equal(t, []string{"A", "B"}, pieces[1].Metadata[models.MetaHeaderHierarchy])
}

func TestSegmentEmptyContent(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\n\t  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, s.Segment(tt.content, nil))
		})
	}
}

func TestSegmentNoHeadings(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 4096, MinTokens: 1})

	pieces := s.Segment("just some plain text\nwith a second line", nil)
	require.Len(t, pieces, 1)
	assert.Equal(t, "just some plain text\nwith a second line", pieces[0].Content)
	_, hasPath := pieces[0].Metadata[models.MetaSectionPath]
	assert.False(t, hasPath)
}

func TestSegmentHeaderStack(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 4096, MinTokens: 1, MergePeers: true})

	content := "# A\nintro\n## B\ntext\n### C\ndeep\n## D\nback up\n# E\nfresh"
	pieces := s.Segment(content, nil)
	require.Len(t, pieces, 5)

	wantPaths := []string{"A", "A > B", "A > B > C", "A > D", "E"}
	for i, want := range wantPaths {
		assert.Equal(t, want, pieces[i].Metadata[models.MetaSectionPath], "piece %d", i)
	}
}

func TestSegmentDeterminism(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 30, MinTokens: 5, MergePeers: true})

	content := "# Setup\nFirst step. Second step. Third step here.\n\n" +
		"Another paragraph with more detail about the setup process.\n\n" +
		"## Install\nRun the installer. Wait for it. Done now."

	first := s.Segment(content, nil)
	second := s.Segment(content, nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content, "piece %d", i)
		assert.Equal(t, first[i].Metadata[models.MetaSectionPath], second[i].Metadata[models.MetaSectionPath])
	}
}

func TestSegmentOversizeSplit(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 40, MinTokens: 1, MergePeers: false})

	var sb strings.Builder
	sb.WriteString("# Long\n")
	for i := 0; i < 12; i++ {
		sb.WriteString("This is a short sentence. Here is one more.\n\n")
	}

	pieces := s.Segment(sb.String(), nil)
	require.Greater(t, len(pieces), 1)

	for i, piece := range pieces {
		assert.LessOrEqual(t, s.tokens.Count(s.contextualize(piece)), s.cfg.MaxTokens, "piece %d exceeds ceiling", i)
		assert.Equal(t, "Long", piece.Metadata[models.MetaSectionPath], "piece %d lost metadata", i)
		assert.NotEmpty(t, strings.TrimSpace(piece.Content))
	}
}

func TestSegmentMergeSmallPeers(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 200, MinTokens: 50, MergePeers: true})

	// Two tiny paragraphs under the same section merge into one chunk.
	content := "# S\nfirst tiny paragraph here\n\nsecond tiny paragraph here"
	pieces := s.Segment(content, nil)

	require.Len(t, pieces, 1)
	assert.Contains(t, pieces[0].Content, "first tiny paragraph")
	assert.Contains(t, pieces[0].Content, "second tiny paragraph")
}

func TestSegmentNoMergeAcrossSections(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 500, MinTokens: 100, MergePeers: true})

	pieces := s.Segment("# A\ntiny\n\n# B\nalso tiny", nil)
	require.Len(t, pieces, 2)
	assert.Equal(t, "A", pieces[0].Metadata[models.MetaSectionPath])
	assert.Equal(t, "B", pieces[1].Metadata[models.MetaSectionPath])
}

func TestSegmentMergeRespectsCeiling(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 25, MinTokens: 20, MergePeers: true})

	content := "# S\none two three four five six seven eight nine ten\n\n" +
		"eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty"
	pieces := s.Segment(content, nil)

	for i, piece := range pieces {
		assert.LessOrEqual(t, s.tokens.Count(s.contextualize(piece)), s.cfg.MaxTokens, "piece %d", i)
	}
}

func TestSegmentAnnotations(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 4096, MinTokens: 1})

	pieces := s.Segment("# A\nsome body text\n\n# B\nmore body text", nil)
	require.Len(t, pieces, 2)

	for i, piece := range pieces {
		assert.Equal(t, i, piece.Metadata[models.MetaChunkIndex])
		assert.Equal(t, 2, piece.Metadata[models.MetaTotalChunks])
		assert.NotNil(t, piece.Metadata[models.MetaKeywords])
		assert.NotEmpty(t, piece.Metadata[models.MetaContentType])
		assert.Greater(t, piece.Metadata[models.MetaTokenCount].(int), 0)
	}
}

func TestSegmentInheritsSourceMetadata(t *testing.T) {
	s := NewSegmenter(Config{MaxTokens: 4096, MinTokens: 1})

	meta := map[string]any{"origin": "upload.md"}
	pieces := s.Segment("# A\nbody", meta)
	require.Len(t, pieces, 1)
	assert.Equal(t, "upload.md", pieces[0].Metadata["origin"])

	// The source map itself is not mutated.
	assert.Len(t, meta, 1)
}

func TestSplitIntoPartsCodeFenceAtomic(t *testing.T) {
	content := "intro paragraph\n\n```go\nfunc main() {\n\n}\n```\n\noutro paragraph"
	parts := splitIntoParts(content)

	require.Len(t, parts, 3)
	assert.Equal(t, "intro paragraph", parts[0])
	assert.Contains(t, parts[1], "func main()")
	assert.True(t, strings.HasPrefix(parts[1], "```"))
	assert.Equal(t, "outro paragraph", parts[2])
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"no trailing punctuation", "One. Two", []string{"One.", "Two"}},
		{"punctuation without space", "v1.2 release. Done.", []string{"v1.2 release.", "Done."}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.in))
		})
	}
}
