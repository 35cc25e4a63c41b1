package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	client "github.com/idrsolutions/idrcloud-client-go"
)

// buildClient shares logger with the command so every record on stderr goes
// through one handler.
func buildClient(cmd *cobra.Command, opts *cliOptions, logger *slog.Logger) client.Client {
	options := []client.Option{
		client.WithPollInterval(opts.pollInterval),
		client.WithProgressWriter(cmd.OutOrStdout()),
		client.WithLogger(logger),
	}
	if opts.username != "" && opts.password != "" {
		options = append(options, client.WithBasicAuth(opts.username, opts.password))
	}
	return client.NewClient(options...)
}

func logLevel(opts *cliOptions) slog.Level {
	if opts.verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// collectInputFiles expands p into the regular files to upload. Directories
// are scanned one level deep; exts filters by extension when non-empty.
func collectInputFiles(p string, exts []string) ([]string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	if info.Mode().IsRegular() {
		return []string{p}, nil
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is neither file nor directory: %s", p)
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if matchesExt(entry.Name(), exts) {
			files = append(files, filepath.Join(p, entry.Name()))
		}
	}

	return files, nil
}

func matchesExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, want := range exts {
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func commandLogger(cmd *cobra.Command, opts *cliOptions) *slog.Logger {
	return newLogger(cmd.ErrOrStderr(), logLevel(opts))
}

// newLogger writes text records without timestamps; stdout is reserved for progress snapshots.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(handler)
}
