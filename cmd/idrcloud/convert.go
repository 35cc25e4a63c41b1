package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	client "github.com/idrsolutions/idrcloud-client-go"
)

func newConvertCmd(opts *cliOptions) *cobra.Command {
	co := &convertOptions{
		opts: opts,
	}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Submit a conversion and wait for it to finish",
		Long: `Submit a document to a conversion service and poll until it is processed.

Upload a local file with --file (or every file in a directory with --path), or
let the service fetch a remote document with --url. Extra service parameters
are passed with --param key=value. Progress snapshots are written to stdout as
JSON; logs go to stderr.`,
		Args:              cobra.NoArgs,
		ValidArgsFunction: flagCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := co.complete(); err != nil {
				return withFailureLog(co.opts.failLogPath, "", co.target(), err)
			}
			return co.run(cmd)
		},
	}

	co.addFlags(cmd)

	return cmd
}

type convertOptions struct {
	input       string
	filePath    string
	inputPath   string
	exts        []string
	url         string
	params      map[string]string
	callbackURL string
	download    bool
	outputDir   string
	filename    string
	concurrency int
	opts        *cliOptions
	files       []string
}

// conversionJob is one Convert call: a single uploaded file or one remote URL.
type conversionJob struct {
	label      string
	parameters client.Parameters
}

func (o *convertOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.input, "input", "", "Input mode: upload|download|jpedal|buildvu|formvu (inferred from --file/--url)")
	cmd.Flags().StringVarP(&o.filePath, "file", "f", "", "Local file to upload")
	cmd.Flags().StringVarP(&o.inputPath, "path", "p", "", "File or directory of files to upload, one job each")
	cmd.Flags().StringSliceVar(&o.exts, "ext", nil, "Only upload files with these extensions when using --path")
	cmd.Flags().StringVar(&o.url, "url", "", "Remote document for the service to fetch")
	cmd.Flags().StringToStringVar(&o.params, "param", nil, "Extra service parameter key=value (repeatable)")
	cmd.Flags().StringVar(&o.callbackURL, "callback-url", "", "Ask the service to call this URL instead of polling")
	cmd.Flags().BoolVar(&o.download, "download", false, "Download the converted output when ready")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", ".", "Directory for downloaded output")
	cmd.Flags().StringVar(&o.filename, "filename", "", "Name for the downloaded file (single job only)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 3, "Number of concurrent jobs when using --path")
}

func (o *convertOptions) target() string {
	switch {
	case o.filePath != "":
		return o.filePath
	case o.inputPath != "":
		return o.inputPath
	default:
		return o.url
	}
}

func (o *convertOptions) complete() error {
	if o.opts.endpoint == "" {
		return errors.New("flag --endpoint is required (or set IDRCLOUD_ENDPOINT)")
	}

	if o.filePath != "" && o.inputPath != "" {
		return errors.New("flags --file and --path are mutually exclusive")
	}

	hasLocal := o.filePath != "" || o.inputPath != ""
	if o.input == "" {
		switch {
		case hasLocal:
			o.input = string(client.InputUpload)
		case o.url != "":
			o.input = string(client.InputDownload)
		default:
			return errors.New("flag --file, --path, or --url is required")
		}
	}

	if client.InputMode(o.input) != client.InputUpload {
		if hasLocal {
			return fmt.Errorf("--file/--path require --input %s", client.InputUpload)
		}
		return nil
	}

	if !hasLocal {
		return errors.New("flag --file or --path is required for upload")
	}

	if o.concurrency <= 0 {
		o.concurrency = 3
	}

	if o.filePath != "" {
		o.files = []string{o.filePath}
		return nil
	}

	files, err := collectInputFiles(o.inputPath, o.exts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found in %s", o.inputPath)
	}
	if len(files) > 1 && o.filename != "" {
		return errors.New("--filename cannot be used with more than one file")
	}
	o.files = files

	return nil
}

// jobs expands the options into one parameter set per conversion.
func (o *convertOptions) jobs() []conversionJob {
	base := client.Parameters{}
	maps.Copy(base, o.params)
	base[client.ParamInput] = o.input
	if o.url != "" {
		base[client.ParamURL] = o.url
	}
	if o.callbackURL != "" {
		base[client.ParamCallbackURL] = o.callbackURL
	}
	if o.opts.username != "" && o.opts.password != "" {
		base[client.ParamUsername] = o.opts.username
		base[client.ParamPassword] = o.opts.password
	}

	if len(o.files) == 0 {
		return []conversionJob{{label: o.target(), parameters: base}}
	}

	jobs := make([]conversionJob, 0, len(o.files))
	for _, file := range o.files {
		params := maps.Clone(base)
		params[client.ParamFile] = file
		jobs = append(jobs, conversionJob{label: filepath.Base(file), parameters: params})
	}
	return jobs
}

func (o *convertOptions) run(cmd *cobra.Command) error {
	logger := commandLogger(cmd, o.opts)
	cli := buildClient(cmd, o.opts, logger)
	ctx := cmd.Context()

	jobs := o.jobs()
	if len(jobs) == 1 {
		return o.handleJob(ctx, logger, cli, jobs[0])
	}

	return o.runBatch(ctx, logger, cli, jobs)
}

func (o *convertOptions) handleJob(ctx context.Context, logger *slog.Logger, cli client.Client, job conversionJob) error {
	logger.LogAttrs(ctx, slog.LevelDebug, "Submitting conversion",
		slog.String("file", job.label),
		slog.String("input", o.input),
	)

	result, err := cli.Convert(ctx, client.ConversionOptions{
		Endpoint:          o.opts.endpoint,
		Parameters:        job.parameters,
		RequestTimeout:    o.opts.requestTimeout,
		ConversionTimeout: o.opts.conversionTimeout,
	})
	if err != nil {
		return withFailureLog(o.opts.failLogPath, failedUUID(err), job.label, fmt.Errorf("[%s] %w", job.label, err))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Conversion finished",
		slog.String("file", job.label),
		slog.String("state", string(result.State)),
		slog.String("uuid", result.UUID),
		slog.String("url", result.DownloadURL),
	)

	if !o.download || result.State != client.StateProcessed {
		return nil
	}

	path, err := cli.DownloadOutput(ctx, result, o.outputDir, o.filename)
	if err != nil {
		return withFailureLog(o.opts.failLogPath, result.UUID, job.label, fmt.Errorf("[%s] %w", job.label, err))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Downloaded converted file",
		slog.String("file", job.label),
		slog.String("path", path),
	)
	return nil
}

func (o *convertOptions) runBatch(ctx context.Context, logger *slog.Logger, cli client.Client, jobs []conversionJob) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)

	var (
		errs []error
		mu   sync.Mutex
	)

	for _, job := range jobs {
		eg.Go(func() error {
			if err := o.handleJob(ctx, logger, cli, job); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if len(errs) > 0 {
		return fmt.Errorf("batch completed with %d errors, first: %w", len(errs), errs[0])
	}

	return nil
}

// failedUUID recovers the job uuid carried by polling errors.
func failedUUID(err error) string {
	var (
		convErr    *client.ConversionError
		exhausted  *client.PollExhaustedError
		timeoutErr *client.ConversionTimeoutError
	)
	switch {
	case errors.As(err, &convErr):
		return convErr.UUID
	case errors.As(err, &exhausted):
		return exhausted.UUID
	case errors.As(err, &timeoutErr):
		return timeoutErr.UUID
	default:
		return ""
	}
}
