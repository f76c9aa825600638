package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo describes the effective ranking setup.
type StatusInfo struct {
	ConfigFiles []string `json:"config_files"`

	Fusion             string  `json:"fusion"`
	KeywordWeight      float64 `json:"keyword_weight"`
	EmbeddingWeight    float64 `json:"embedding_weight"`
	RRFConstant        int     `json:"rrf_constant,omitempty"`
	NormalizationFloor float64 `json:"normalization_floor"`
	BM25Backend        string  `json:"bm25_backend"`

	EmbedderProvider string `json:"embedder_provider"`
	EmbedderModel    string `json:"embedder_model,omitempty"`
	EmbedderStatus   string `json:"embedder_status"` // "ready", "offline", "error"
	Dimensions       int    `json:"dimensions,omitempty"`
	EmbedderError    string `json:"embedder_error,omitempty"`
}

// StatusRenderer displays StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("foldrank status"))

	_, _ = fmt.Fprintln(r.out, "  Config:")
	if len(info.ConfigFiles) == 0 {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render("defaults only"))
	}
	for _, f := range info.ConfigFiles {
		_, _ = fmt.Fprintf(r.out, "    %s\n", f)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Ranking:")
	_, _ = fmt.Fprintf(r.out, "    Fusion:   %s\n", info.Fusion)
	_, _ = fmt.Fprintf(r.out, "    Weights:  keyword %.2f, embedding %.2f\n", info.KeywordWeight, info.EmbeddingWeight)
	if info.Fusion == "rrf" {
		_, _ = fmt.Fprintf(r.out, "    RRF k:    %d\n", info.RRFConstant)
	}
	if info.NormalizationFloor > 0 {
		_, _ = fmt.Fprintf(r.out, "    Floor:    %.2f\n", info.NormalizationFloor)
	}
	_, _ = fmt.Fprintf(r.out, "    BM25:     %s\n", info.BM25Backend)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", info.EmbedderProvider)
	_, _ = fmt.Fprintf(r.out, "    Status:   %s\n", r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:    %s (%d dims)\n", info.EmbedderModel, info.Dimensions)
	}
	if info.EmbedderError != "" {
		_, _ = fmt.Fprintf(r.out, "    Error:    %s\n", r.styles.Error.Render(info.EmbedderError))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}
