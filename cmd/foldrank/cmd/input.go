package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/foldrank/internal/ui"
)

// contentFlags select where the text to rank comes from.
type contentFlags struct {
	text string
	file string
}

func (f *contentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.text, "text", "t", "", "Text to rank against (default: read stdin)")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read text from file ('-' for stdin)")
}

// read returns the text from --text, --file or stdin, in that order.
func (f *contentFlags) read(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case f.text != "":
		return f.text, nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case f.file != "" && f.file != "-":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.file, err)
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if file, ok := in.(*os.File); ok && f.file == "" && ui.IsTTY(file) {
		return "", fmt.Errorf("no text given: pass --text, --file or pipe to stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// candidateFlags collect candidates from a list flag and/or a file.
type candidateFlags struct {
	name  string
	list  []string
	files []string
}

func (f *candidateFlags) register(cmd *cobra.Command, name, usage string) {
	f.name = name
	cmd.Flags().StringSliceVar(&f.list, name, nil, usage+" (comma separated, repeatable)")
	cmd.Flags().StringArrayVar(&f.files, name+"-file", nil, "Read "+name+" from file, one per line")
}

// collect returns flag values followed by file lines. Blank lines and
// lines starting with '#' followed by a space are skipped.
func (f *candidateFlags) collect() ([]string, error) {
	out := append([]string(nil), f.list...)
	for _, path := range f.files {
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s given: pass --%s or --%s-file", f.name, f.name, f.name)
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "# ") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// renderConfig builds the ui config for stdout.
func renderConfig(cmd *cobra.Command, flags *globalFlags, jsonOut bool) ui.Config {
	cfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithJSON(jsonOut))
	if flags.noColor {
		cfg.NoColor = true
	}
	return cfg
}
