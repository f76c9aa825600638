package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/config"
	"github.com/Aman-CERP/foldrank/internal/ui"
)

// statusProbeTimeout bounds the embedder availability check.
const statusProbeTimeout = 5 * time.Second

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the effective ranking setup and embedder health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			info := collectStatus(cmd.Context(), flags.dir, cfg)

			noColor := flags.noColor || ui.NewConfig(cmd.OutOrStdout()).NoColor
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
			if jsonOut {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

// collectStatus builds the embedder to probe it. A failure to build is
// reported, not returned.
func collectStatus(ctx context.Context, dir string, cfg *config.Config) ui.StatusInfo {
	info := ui.StatusInfo{
		ConfigFiles:        configFiles(dir),
		Fusion:             cfg.Search.Fusion,
		KeywordWeight:      cfg.Search.KeywordWeight,
		EmbeddingWeight:    cfg.Search.EmbeddingWeight,
		RRFConstant:        cfg.Search.RRFConstant,
		NormalizationFloor: cfg.Search.NormalizationFloor,
		BM25Backend:        cfg.Search.BM25Backend,
		EmbedderProvider:   cfg.Embeddings.Provider,
	}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		info.EmbedderStatus = "error"
		info.EmbedderError = err.Error()
		return info
	}
	defer a.Close()

	info.EmbedderModel = a.embedder.ModelName()
	info.Dimensions = a.embedder.Dimensions()
	info.EmbedderStatus = "offline"
	if a.embedder.Available(ctx) {
		info.EmbedderStatus = "ready"
	}
	return info
}

// configFiles lists the config files that exist for dir, lowest precedence
// first.
func configFiles(dir string) []string {
	var files []string
	if config.UserConfigExists() {
		files = append(files, config.GetUserConfigPath())
	}
	for _, path := range []string{config.ProjectConfigPath(dir), dotenvPath(dir)} {
		if fileExists(path) {
			files = append(files, path)
		}
	}
	return files
}
