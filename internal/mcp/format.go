package mcp

import (
	"fmt"
	"strings"
)

// FormatSuggestions renders suggestions as a markdown list for clients that
// only read text content.
func FormatSuggestions(title string, out *SuggestionsOutput) string {
	if out == nil || len(out.Suggestions) == 0 {
		return fmt.Sprintf("No %s.", strings.ToLower(title))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	for i, s := range out.Suggestions {
		fmt.Fprintf(&sb, "%d. **%s** (score %.3f, keyword %.3f, semantic %.3f)\n",
			i+1, s.Name, s.Score, s.LexicalScore, s.SemanticScore)
	}
	return sb.String()
}

// FormatStatus renders the ranker status as markdown.
func FormatStatus(st *RankerStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Ranker Status\n\n")
	fmt.Fprintf(&sb, "- **Fusion:** %s\n", st.Fusion)
	fmt.Fprintf(&sb, "- **Weights:** keyword %.2f, embedding %.2f\n", st.KeywordWeight, st.EmbeddingWeight)
	if st.Fusion == "rrf" {
		fmt.Fprintf(&sb, "- **RRF k:** %d\n", st.RRFConstant)
	}
	fmt.Fprintf(&sb, "- **Embedder:** %s (%d dims, available: %t)\n", st.EmbeddingModel, st.Dimensions, st.EmbedderAvailable)
	return sb.String()
}
