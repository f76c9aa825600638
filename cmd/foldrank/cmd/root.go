// Package cmd provides the CLI commands for foldrank.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/logging"
	"github.com/Aman-CERP/foldrank/internal/profiling"
	"github.com/Aman-CERP/foldrank/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dir      string
	provider string
	noColor  bool
	debug    bool

	profile  profiling.Options
	profiler *profiling.Profiler
}

// NewRootCmd creates the root command for foldrank CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "foldrank",
		Short: "Rank folders and tags for a note with hybrid BM25 + embedding search",
		Long: `foldrank scores a fixed list of candidates (folder paths, tag names) against
a piece of text. Each candidate gets a keyword score from BM25 and a semantic
score from embeddings; the two are normalized and fused into one ranking.

Configuration is read from ~/.config/foldrank/config.yaml, .foldrank.yaml in
the project directory, .env and FOLDRANK_* environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupCLILogging(cmd, flags); err != nil {
				return err
			}
			return startProfiling(flags)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return stopProfiling(flags)
		},
	}

	cmd.SetVersionTemplate("foldrank version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Project directory holding .foldrank.yaml and .env")
	cmd.PersistentFlags().StringVar(&flags.provider, "provider", "", "Embedding provider override: ollama, openai, static")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Log debug output to stderr")
	cmd.PersistentFlags().StringVar(&flags.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&flags.profile.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&flags.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newRankCmd(flags))
	cmd.AddCommand(newFoldersCmd(flags))
	cmd.AddCommand(newTagsCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupCLILogging routes logs to stderr for interactive commands. serve
// installs its own logger.
func setupCLILogging(cmd *cobra.Command, flags *globalFlags) error {
	if cmd.Name() == "serve" {
		return nil
	}
	level := "warn"
	if flags.debug {
		level = "debug"
	}
	logger, _, err := logging.Setup(logging.Config{Level: level, Stderr: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return nil
}

func startProfiling(flags *globalFlags) error {
	if !flags.profile.Enabled() {
		return nil
	}
	p, err := profiling.Start(flags.profile)
	if err != nil {
		return err
	}
	flags.profiler = p
	return nil
}

func stopProfiling(flags *globalFlags) error {
	if flags.profiler == nil {
		return nil
	}
	err := flags.profiler.Stop()
	flags.profiler = nil
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		reportError(root.ErrOrStderr(), cmd, err)
	}
	return err
}

// reportError prints err for a person, or as one JSON object when the
// failed command was run with --json.
func reportError(w io.Writer, cmd *cobra.Command, err error) {
	if cmd != nil {
		if f := cmd.Flags().Lookup("json"); f != nil && f.Value.String() == "true" {
			if data, jerr := errors.FormatJSON(err); jerr == nil {
				_, _ = fmt.Fprintf(w, "%s\n", data)
				return
			}
		}
	}
	_, _ = fmt.Fprint(w, errors.FormatForCLI(err))
}
