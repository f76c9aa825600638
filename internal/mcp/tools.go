package mcp

import "github.com/Aman-CERP/foldrank/internal/search"

// Tool names.
const (
	ToolSuggestFolders = "suggest_folders"
	ToolSuggestTags    = "suggest_tags"
	ToolRankCandidates = "rank_candidates"
	ToolRankerStatus   = "ranker_status"
)

// SuggestFoldersInput defines the input schema for the suggest_folders tool.
type SuggestFoldersInput struct {
	Content  string   `json:"content" jsonschema:"the note body"`
	FileName string   `json:"file_name,omitempty" jsonschema:"the note file name, used as extra query text"`
	Folders  []string `json:"folders" jsonschema:"candidate folder paths from the vault"`
	Count    int      `json:"count,omitempty" jsonschema:"number of suggestions, default 2"`
}

// SuggestTagsInput defines the input schema for the suggest_tags tool.
type SuggestTagsInput struct {
	Content  string   `json:"content" jsonschema:"the note body"`
	FileName string   `json:"file_name,omitempty" jsonschema:"the note file name, used as extra query text"`
	Tags     []string `json:"tags" jsonschema:"existing vault tags, with or without the leading #"`
	Count    int      `json:"count,omitempty" jsonschema:"number of suggestions, default 3"`
}

// RankCandidatesInput defines the input schema for the rank_candidates tool.
type RankCandidatesInput struct {
	Query      string   `json:"query" jsonschema:"free text to rank candidates against"`
	Candidates []string `json:"candidates" jsonschema:"candidate names in any order"`
	TopK       int      `json:"top_k,omitempty" jsonschema:"number of results, default 2"`
}

// RankerStatusInput defines the input schema for the ranker_status tool (no parameters).
type RankerStatusInput struct{}

// SuggestionsOutput defines the output schema for the ranking tools.
type SuggestionsOutput struct {
	Suggestions []SuggestionOutput `json:"suggestions" jsonschema:"ranked suggestions, best first"`
}

// SuggestionOutput is one ranked candidate.
type SuggestionOutput struct {
	Name          string  `json:"name" jsonschema:"candidate name as given"`
	Score         float64 `json:"score" jsonschema:"hybrid score"`
	LexicalScore  float64 `json:"lexical_score" jsonschema:"normalized BM25 score in [0,1]"`
	SemanticScore float64 `json:"semantic_score" jsonschema:"normalized embedding similarity in [0,1]"`
}

// RankerStatusOutput reports the live ranking configuration.
type RankerStatusOutput struct {
	Fusion             string  `json:"fusion"`
	KeywordWeight      float64 `json:"keyword_weight"`
	EmbeddingWeight    float64 `json:"embedding_weight"`
	RRFConstant        int     `json:"rrf_constant"`
	NormalizationFloor float64 `json:"normalization_floor"`
	EmbeddingModel     string  `json:"embedding_model"`
	Dimensions         int     `json:"dimensions"`
	EmbedderAvailable  bool    `json:"embedder_available"`
}

func toSuggestionsOutput(results []search.Result) *SuggestionsOutput {
	out := &SuggestionsOutput{Suggestions: make([]SuggestionOutput, 0, len(results))}
	for _, r := range results {
		out.Suggestions = append(out.Suggestions, SuggestionOutput{
			Name:          r.Name,
			Score:         r.Score,
			LexicalScore:  r.LexicalScore,
			SemanticScore: r.SemanticScore,
		})
	}
	return out
}
