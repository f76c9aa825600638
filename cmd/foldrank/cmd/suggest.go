package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/suggest"
	"github.com/Aman-CERP/foldrank/internal/ui"
)

func newFoldersCmd(flags *globalFlags) *cobra.Command {
	var (
		content  contentFlags
		folders  candidateFlags
		fileName string
		count    int
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "folders [text...]",
		Short: "Suggest destination folders for a note",
		Example: `  foldrank folders --file inbox/acme.md --file-name acme.md \
    --folders-file folders.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := content.read(cmd, args)
			if err != nil {
				return err
			}
			cands, err := folders.collect()
			if err != nil {
				return err
			}
			svc, a, err := newSuggestService(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := svc.SuggestFolders(cmd.Context(), suggest.FolderRequest{
				Content:  text,
				FileName: fileName,
				Folders:  cands,
				Count:    count,
			})
			if err != nil {
				return err
			}
			return ui.NewResultsRenderer(renderConfig(cmd, flags, jsonOut)).Render("Folders", resp.Suggestions)
		},
	}

	content.register(cmd)
	folders.register(cmd, "folders", "Existing folder paths")
	cmd.Flags().StringVar(&fileName, "file-name", "", "Note file name, ranked together with the text")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of suggestions (default: search.default_top_k)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func newTagsCmd(flags *globalFlags) *cobra.Command {
	var (
		content  contentFlags
		tags     candidateFlags
		fileName string
		count    int
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "tags [text...]",
		Short: "Suggest existing tags for a note",
		Long: `Suggest existing tags for a note. Tags already present in the text as
#tag are not suggested again.`,
		Example: `  foldrank tags --file trip.md --tags "#travel,#finance,#recipes"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := content.read(cmd, args)
			if err != nil {
				return err
			}
			cands, err := tags.collect()
			if err != nil {
				return err
			}
			svc, a, err := newSuggestService(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := svc.SuggestTags(cmd.Context(), suggest.TagRequest{
				Content:  text,
				FileName: fileName,
				Tags:     cands,
				Count:    count,
			})
			if err != nil {
				return err
			}
			return ui.NewResultsRenderer(renderConfig(cmd, flags, jsonOut)).Render("Tags", resp.Suggestions)
		},
	}

	content.register(cmd)
	tags.register(cmd, "tags", "Existing tags")
	cmd.Flags().StringVar(&fileName, "file-name", "", "Note file name, ranked together with the text")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of suggestions (default: search.tag_top_k)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

// newSuggestService wires the suggestion service with configured default
// counts. The caller closes the returned app.
func newSuggestService(cmd *cobra.Command, flags *globalFlags) (*suggest.Service, *app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := suggest.NewService(a.ranker,
		suggest.WithDefaultCounts(cfg.Search.DefaultTopK, cfg.Search.TagTopK))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return svc, a, nil
}
