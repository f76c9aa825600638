// Package ui renders ranking results and status for the terminal.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config configures terminal rendering.
type Config struct {
	Output  io.Writer
	NoColor bool
	JSON    bool
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithJSON selects JSON output.
func WithJSON(json bool) ConfigOption {
	return func(c *Config) {
		c.JSON = json
	}
}

// NewConfig creates a Config for output. Color is disabled automatically for
// pipes, CI and when NO_COLOR is set.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:  output,
		NoColor: !IsTTY(output) || DetectNoColor() || DetectCI(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
