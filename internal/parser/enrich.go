package parser

import (
	"regexp"
	"sort"
	"strings"
)

var stopwords = map[string]bool{
	"about": true, "after": true, "before": true, "between": true,
	"could": true, "should": true, "would": true, "these": true,
	"those": true, "through": true, "during": true, "where": true,
	"which": true, "while": true, "other": true, "under": true,
	"above": true, "again": true, "against": true, "their": true,
	"there": true,
}

var (
	markdownSyntaxRe = regexp.MustCompile("[#*`\\[\\]()]")
	nonWordRe        = regexp.MustCompile(`\W+`)
	listItemRe       = regexp.MustCompile(`(?m)^[\s]*[-*+]\s`)
	tableRowRe       = regexp.MustCompile(`\|.*\|`)
	numberedRe       = regexp.MustCompile(`(?m)^\d+\.\s`)
)

// extractKeywords returns up to 10 frequency-ranked lower-cased words longer
// than 5 characters, with common stopwords excluded. Ordering is stable:
// ties break on first occurrence.
func extractKeywords(content string) []string {
	clean := codeFenceRe.ReplaceAllString(content, "")
	clean = markdownSyntaxRe.ReplaceAllString(clean, "")
	clean = strings.ToLower(clean)

	type wordStat struct {
		word  string
		count int
		first int
	}

	stats := map[string]*wordStat{}
	var order []*wordStat

	for i, word := range nonWordRe.Split(clean, -1) {
		if len(word) <= 5 || stopwords[word] {
			continue
		}
		if st, ok := stats[word]; ok {
			st.count++
			continue
		}
		st := &wordStat{word: word, count: 1, first: i}
		stats[word] = st
		order = append(order, st)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	keywords := make([]string, 0, 10)
	for _, st := range order {
		keywords = append(keywords, st.word)
		if len(keywords) == 10 {
			break
		}
	}
	return keywords
}

// detectContentTypes tags a chunk with coarse content categories used for
// retrieval-time filtering.
func detectContentTypes(content string) []string {
	var types []string
	if strings.Contains(content, "```") {
		types = append(types, "code")
	}
	if listItemRe.MatchString(content) {
		types = append(types, "list")
	}
	if tableRowRe.MatchString(content) {
		types = append(types, "table")
	}
	if numberedRe.MatchString(content) {
		types = append(types, "numbered_list")
	}
	if len(types) == 0 {
		types = append(types, "text")
	}
	return types
}
