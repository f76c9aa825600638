package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/foldrank/configs"
	"github.com/Aman-CERP/foldrank/internal/config"
	"github.com/Aman-CERP/foldrank/internal/output"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage foldrank configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/foldrank/config.yaml)
  3. Project config (.foldrank.yaml)
  4. .env in the project directory
  5. Environment variables (FOLDRANK_*, OPENAI_API_KEY)`,
		Example: `  # Create .foldrank.yaml with defaults
  foldrank config init

  # Show effective configuration (merged from all sources)
  foldrank config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd(flags))
	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigValidateCmd(flags))
	cmd.AddCommand(newConfigPathCmd(flags))

	return cmd
}

func newConfigInitCmd(flags *globalFlags) *cobra.Command {
	var (
		force     bool
		user      bool
		effective bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Long: `Write the default configuration to .foldrank.yaml in the project directory,
or to the user config file with --user.

The file is a commented template listing every setting. With --effective
the merged configuration currently in effect is written instead.

With --force an existing file is backed up before it is replaced; the
newest backups are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(flags.dir, config.ProjectConfigName)
			if user {
				path = config.GetUserConfigPath()
			}
			write := writeTemplate
			if effective {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				write = cfg.WriteYAML
			}
			return runConfigInit(cmd, path, force, write)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&effective, "effective", false, "Write the merged configuration instead of the template")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool, write func(path string) error) error {
	out := output.New(cmd.OutOrStdout())

	exists := fileExists(path)
	if exists && !force {
		out.Warning("Configuration already exists")
		out.Field("Location", path)
		out.Newline()
		out.Status("💡", "Use --force to replace it (a backup is kept)")
		return nil
	}

	var backupPath string
	if exists {
		var err error
		backupPath, err = config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	if err := write(path); err != nil {
		return err
	}

	out.Success("Created configuration")
	out.Field("Location", path)
	if backupPath != "" {
		out.Field("Backup", backupPath)
	}
	return nil
}

func newConfigShowCmd(flags *globalFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.
The OpenAI API key is never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func newConfigValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the effective configuration is valid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(flags); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success("Configuration is valid")
			return nil
		},
	}
}

func newConfigPathCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print config file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(out, "project: %s\n", config.ProjectConfigPath(flags.dir))
			_, _ = fmt.Fprintf(out, "dotenv:  %s\n", dotenvPath(flags.dir))
			return nil
		},
	}
}

func writeTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func dotenvPath(dir string) string {
	return filepath.Join(dir, ".env")
}

// fileExists checks if a regular file exists.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
