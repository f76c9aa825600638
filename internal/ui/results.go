package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/foldrank/internal/search"
)

// barWidth is the number of cells in a full score bar.
const barWidth = 20

// ResultsRenderer prints ranked results.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
	json   bool
}

// NewResultsRenderer creates a results renderer.
func NewResultsRenderer(cfg Config) *ResultsRenderer {
	return &ResultsRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor),
		json:   cfg.JSON,
	}
}

// resultsJSON is the JSON document written in JSON mode.
type resultsJSON struct {
	Title   string          `json:"title"`
	Results []search.Result `json:"results"`
}

// Render writes the results under title. In JSON mode the results are
// written as a single document.
func (r *ResultsRenderer) Render(title string, results []search.Result) error {
	if r.json {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(resultsJSON{Title: title, Results: results})
	}

	if _, err := fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(title)); err != nil {
		return err
	}
	if len(results) == 0 {
		_, err := fmt.Fprintln(r.out, r.styles.Dim.Render("  (no candidates)"))
		return err
	}

	width := 0
	for _, res := range results {
		width = max(width, lipgloss.Width(res.Name))
	}

	for i, res := range results {
		name := res.Name + strings.Repeat(" ", width-lipgloss.Width(res.Name))
		line := fmt.Sprintf("  %2d. %s  %s %s  %s",
			i+1,
			r.styles.Name.Render(name),
			r.styles.Bar.Render(ScoreBar(res.Score, barWidth)),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.Score)),
			r.styles.Label.Render(fmt.Sprintf("keyword %.2f  semantic %.2f", res.LexicalScore, res.SemanticScore)),
		)
		if _, err := fmt.Fprintln(r.out, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// ScoreBar draws score in [0,1] as a bar of width cells using eighth blocks.
// Out-of-range scores are clamped.
func ScoreBar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	eighths := int(math.Round(score * float64(width*8)))
	full := eighths / 8
	rem := eighths % 8

	var sb strings.Builder
	sb.WriteString(strings.Repeat("█", full))
	cells := full
	if rem > 0 {
		sb.WriteRune(partialBlocks[rem])
		cells++
	}
	sb.WriteString(strings.Repeat(" ", width-cells))
	return sb.String()
}

// partialBlocks[n] covers n eighths of a cell.
var partialBlocks = []rune{' ', '▏', '▎', '▍', '▌', '▋', '▊', '▉'}
