package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	client "github.com/idrsolutions/idrcloud-client-go"
)

type downloadOptions struct {
	url       string
	outputDir string
	filename  string
	opts      *cliOptions
}

// newDownloadCmd fetches the output of a job converted earlier, e.g. one
// submitted with --callback-url.
func newDownloadCmd(opts *cliOptions) *cobra.Command {
	do := &downloadOptions{opts: opts}

	cmd := &cobra.Command{
		Use:               "download",
		Short:             "Download the output of a processed conversion",
		Args:              cobra.NoArgs,
		ValidArgsFunction: flagCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			return do.run(cmd)
		},
	}

	cmd.Flags().StringVar(&do.url, "url", "", "downloadUrl reported by the service")
	cmd.Flags().StringVarP(&do.outputDir, "output-dir", "o", ".", "Directory for the downloaded file")
	cmd.Flags().StringVar(&do.filename, "filename", "", "Name for the downloaded file (defaults to the URL's last segment)")

	return cmd
}

func (o *downloadOptions) run(cmd *cobra.Command) error {
	if o.url == "" {
		return withFailureLog(o.opts.failLogPath, "", "", errors.New("flag --url is required"))
	}

	logger := commandLogger(cmd, o.opts)
	cli := buildClient(cmd, o.opts, logger)
	result := &client.ConversionResult{State: client.StateProcessed, DownloadURL: o.url}

	path, err := cli.DownloadOutput(cmd.Context(), result, o.outputDir, o.filename)
	if err != nil {
		return withFailureLog(o.opts.failLogPath, "", o.url, fmt.Errorf("download %s: %w", o.url, err))
	}

	logger.LogAttrs(cmd.Context(), slog.LevelInfo, "Downloaded converted file",
		slog.String("url", o.url),
		slog.String("path", path),
	)
	return nil
}
