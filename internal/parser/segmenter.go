// Package parser provides structure-aware text segmentation for retrieval.
package parser

import (
	"regexp"
	"strings"

	"github.com/fkaule/docpilot/internal/models"
)

// Piece is a segment of source content destined to become a chunk.
type Piece struct {
	Content  string
	Metadata map[string]any
}

// Config defines segmentation parameters. All sizes are token counts over
// the header-hierarchy-prefixed text.
type Config struct {
	// MaxTokens is the hard ceiling per chunk including its header context.
	MaxTokens int
	// MinTokens is the threshold below which adjacent same-section chunks
	// are merged.
	MinTokens int
	// MergePeers toggles the undersize merge phase.
	MergePeers bool
}

// DefaultConfig returns the default segmentation parameters.
func DefaultConfig() Config {
	return Config{
		MaxTokens:  512,
		MinTokens:  128,
		MergePeers: true,
	}
}

// Segmenter splits raw Markdown-ish content into size-bounded pieces.
type Segmenter struct {
	cfg    Config
	tokens *TokenCounter
}

// NewSegmenter creates a segmenter with the given configuration.
func NewSegmenter(cfg Config) *Segmenter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = DefaultConfig().MinTokens
	}
	return &Segmenter{cfg: cfg, tokens: NewTokenCounter()}
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

type headerEntry struct {
	level int
	text  string
}

// Segment runs the three segmentation phases and annotates the result.
// Blank content yields zero pieces. Malformed heading syntax is treated as
// plain content, never an error.
func (s *Segmenter) Segment(content string, sourceMeta map[string]any) []Piece {
	structural := s.splitByStructure(content, sourceMeta)
	refined := s.splitOversized(structural)

	final := refined
	if s.cfg.MergePeers {
		final = s.mergeSmall(refined)
	}

	return s.annotate(final)
}

// splitByStructure scans line by line; each heading closes the open piece
// and starts a new one carrying the full ancestor header path.
func (s *Segmenter) splitByStructure(content string, sourceMeta map[string]any) []Piece {
	var pieces []Piece
	var headerStack []headerEntry

	current := Piece{Metadata: cloneMeta(sourceMeta)}
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			current.Content = text
			pieces = append(pieces, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		match := headingRe.FindStringSubmatch(line)
		if match == nil {
			if body.Len() > 0 {
				body.WriteString("\n")
			}
			body.WriteString(line)

			// Body content that precedes metadata assignment still inherits
			// the current header context.
			if len(headerStack) > 0 {
				if _, ok := current.Metadata[models.MetaSectionPath]; !ok {
					applyHeaderContext(current.Metadata, headerStack)
				}
			}
			continue
		}

		flush()

		level := len(match[1])
		heading := strings.TrimSpace(match[2])

		// Pop entries at the same or shallower level.
		for len(headerStack) > 0 && headerStack[len(headerStack)-1].level >= level {
			headerStack = headerStack[:len(headerStack)-1]
		}
		headerStack = append(headerStack, headerEntry{level: level, text: heading})

		current = Piece{Metadata: cloneMeta(sourceMeta)}
		applyHeaderContext(current.Metadata, headerStack)
		current.Metadata[models.MetaCurrentHeader] = heading
		current.Metadata[models.MetaHeaderLevel] = level
		body.WriteString(line)
	}

	flush()
	return pieces
}

// splitOversized splits pieces whose header-prefixed token count exceeds the
// ceiling, first at blank-line part boundaries (code fences atomic), then at
// sentence boundaries.
func (s *Segmenter) splitOversized(pieces []Piece) []Piece {
	var result []Piece
	for _, piece := range pieces {
		if s.tokens.Count(s.contextualize(piece)) > s.cfg.MaxTokens {
			result = append(result, s.splitByPartsAndTokens(piece)...)
		} else {
			result = append(result, piece)
		}
	}
	return result
}

func (s *Segmenter) splitByPartsAndTokens(piece Piece) []Piece {
	// The budget accounts for the prefix plus its joining newline so the
	// contextualized chunk can never exceed the ceiling.
	effectiveMax := s.cfg.MaxTokens
	if prefix := headerPrefix(piece.Metadata); prefix != "" {
		effectiveMax -= s.tokens.Count(prefix + "\n")
	}
	if effectiveMax < 1 {
		effectiveMax = 1
	}

	var out []Piece
	var current strings.Builder
	currentTokens := 0

	emit := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			out = append(out, Piece{Content: text, Metadata: cloneMeta(piece.Metadata)})
		}
		current.Reset()
		currentTokens = 0
	}

	for _, part := range splitIntoParts(piece.Content) {
		partTokens := s.tokens.Count(part)

		switch {
		case partTokens > effectiveMax:
			emit()
			for _, sentence := range splitSentences(part) {
				sentenceTokens := s.tokens.Count(sentence)
				if currentTokens+sentenceTokens > effectiveMax && current.Len() > 0 {
					emit()
				}
				current.WriteString(sentence)
				current.WriteString(" ")
				currentTokens += sentenceTokens
			}
		case currentTokens+partTokens > effectiveMax:
			emit()
			current.WriteString(part)
			current.WriteString("\n\n")
			currentTokens = partTokens
		default:
			current.WriteString(part)
			current.WriteString("\n\n")
			currentTokens += partTokens
		}
	}

	emit()
	return out
}

// mergeSmall walks the pieces once, merging adjacent pairs that share a
// section path when at least one is under the minimum and the pair fits the
// ceiling. Greedy: a piece is never reopened once advanced past.
func (s *Segmenter) mergeSmall(pieces []Piece) []Piece {
	if len(pieces) == 0 {
		return pieces
	}

	var merged []Piece
	current := pieces[0]
	currentTokens := s.tokens.Count(s.contextualize(current))

	for _, piece := range pieces[1:] {
		pieceTokens := s.tokens.Count(s.contextualize(piece))
		sameSection := sectionPath(current.Metadata) == sectionPath(piece.Metadata)

		if sameSection &&
			(currentTokens < s.cfg.MinTokens || pieceTokens < s.cfg.MinTokens) &&
			currentTokens+pieceTokens <= s.cfg.MaxTokens {
			current.Content += "\n\n" + piece.Content
			currentTokens += pieceTokens
			continue
		}

		merged = append(merged, current)
		current = piece
		currentTokens = pieceTokens
	}

	merged = append(merged, current)
	return merged
}

// annotate stamps ordinal and enrichment metadata onto the final pieces.
func (s *Segmenter) annotate(pieces []Piece) []Piece {
	for i := range pieces {
		if pieces[i].Metadata == nil {
			pieces[i].Metadata = map[string]any{}
		}
		pieces[i].Metadata[models.MetaChunkIndex] = i
		pieces[i].Metadata[models.MetaTotalChunks] = len(pieces)
		pieces[i].Metadata[models.MetaKeywords] = extractKeywords(pieces[i].Content)
		pieces[i].Metadata[models.MetaContentType] = detectContentTypes(pieces[i].Content)
		pieces[i].Metadata[models.MetaTokenCount] = s.tokens.Count(pieces[i].Content)
	}
	return pieces
}

// contextualize prepends the header hierarchy the way the chunk is later
// presented as grounding context.
func (s *Segmenter) contextualize(piece Piece) string {
	prefix := headerPrefix(piece.Metadata)
	if prefix == "" {
		return piece.Content
	}
	return prefix + "\n" + piece.Content
}

func headerPrefix(meta map[string]any) string {
	hierarchy, ok := meta[models.MetaHeaderHierarchy].([]string)
	if !ok || len(hierarchy) == 0 {
		return ""
	}
	return strings.Join(hierarchy, "\n")
}

func sectionPath(meta map[string]any) string {
	if s, ok := meta[models.MetaSectionPath].(string); ok {
		return s
	}
	return ""
}

func applyHeaderContext(meta map[string]any, stack []headerEntry) {
	hierarchy := make([]string, len(stack))
	for i, h := range stack {
		hierarchy[i] = h.text
	}
	meta[models.MetaHeaderHierarchy] = hierarchy
	meta[models.MetaSectionPath] = strings.Join(hierarchy, " > ")
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```.*?```")
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
)

// splitIntoParts splits content at blank-line boundaries while keeping
// fenced code blocks as atomic parts.
func splitIntoParts(content string) []string {
	var parts []string

	appendProse := func(text string) {
		for _, p := range blankLineRe.Split(text, -1) {
			p = strings.TrimSpace(p)
			if p != "" {
				parts = append(parts, p)
			}
		}
	}

	last := 0
	for _, loc := range codeFenceRe.FindAllStringIndex(content, -1) {
		appendProse(content[last:loc[0]])
		parts = append(parts, strings.TrimSpace(content[loc[0]:loc[1]]))
		last = loc[1]
	}
	appendProse(content[last:])

	return parts
}

// splitSentences splits text at end-of-sentence punctuation followed by
// whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

func cloneMeta(meta map[string]any) map[string]any {
	clone := make(map[string]any, len(meta)+6)
	for k, v := range meta {
		clone[k] = v
	}
	return clone
}
