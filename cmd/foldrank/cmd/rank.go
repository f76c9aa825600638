package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/ui"
)

func newRankCmd(flags *globalFlags) *cobra.Command {
	var (
		content    contentFlags
		candidates candidateFlags
		topK       int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "rank [text...]",
		Short: "Rank candidates against a text",
		Long: `Rank an arbitrary candidate list against a text and print the best matches
with their fused, keyword and semantic scores.`,
		Example: `  # Rank folder paths for a note
  foldrank rank --text "invoice from acme, due in 30 days" \
    --candidates "Finance/Invoices,Travel,Recipes"

  # Read the note from stdin and candidates from a file
  cat note.md | foldrank rank --candidates-file folders.txt --top-k 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := content.read(cmd, args)
			if err != nil {
				return err
			}
			cands, err := candidates.collect()
			if err != nil {
				return err
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = cfg.Search.DefaultTopK
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.ranker.Rank(cmd.Context(), query, cands, topK)
			if err != nil {
				return err
			}
			return ui.NewResultsRenderer(renderConfig(cmd, flags, jsonOut)).Render("Ranking", results)
		},
	}

	content.register(cmd)
	candidates.register(cmd, "candidates", "Candidates to rank")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default: search.default_top_k)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}
