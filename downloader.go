package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// DownloadFile downloads a file from the given URL.
func (c *client) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.DownloadFileTo(ctx, url, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadFileTo streams the resource at url into dst.
func (c *client) DownloadFileTo(ctx context.Context, url string, dst io.Writer) error {
	return c.downloadTo(ctx, url, dst, c.auth)
}

// DownloadOutput writes the artifact of a processed result to outputDir. An
// empty filename falls back to the last path segment of the download URL.
// Existing files are overwritten. The written path is returned.
func (c *client) DownloadOutput(ctx context.Context, result *ConversionResult, outputDir, filename string) (string, error) {
	target, err := c.downloadOutput(ctx, result, outputDir, filename)
	if err != nil {
		return "", c.reportError(ctx, OperationDownload, err, slog.String("dir", outputDir))
	}
	return target, nil
}

func (c *client) downloadOutput(ctx context.Context, result *ConversionResult, outputDir, filename string) (string, error) {
	if result == nil {
		return "", &DownloadError{Err: ErrNilResult}
	}
	if result.State != StateProcessed {
		return "", &DownloadError{URL: result.DownloadURL, Err: fmt.Errorf("%w: state %q", ErrNotProcessed, result.State)}
	}
	if result.DownloadURL == "" {
		return "", &DownloadError{Err: ErrEmptyDownloadURL}
	}

	if filename == "" {
		name, err := filenameFromURL(result.DownloadURL)
		if err != nil {
			return "", &DownloadError{URL: result.DownloadURL, Err: err}
		}
		filename = name
	}
	target := filepath.Join(outputDir, filename)

	auth := result.auth
	if auth == nil {
		auth = c.auth
	}

	written, err := c.writeAtomically(ctx, result.DownloadURL, target, auth)
	if err != nil {
		return "", &DownloadError{URL: result.DownloadURL, Path: target, Err: err}
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "downloaded conversion output",
		slog.String("url", result.DownloadURL),
		slog.String("path", target),
		slog.Int64("bytes", written),
	)

	return target, nil
}

// writeAtomically streams into a temporary file next to target and renames it
// into place, so a failed transfer leaves an existing target untouched.
func (c *client) writeAtomically(ctx context.Context, url, target string, auth *basicAuth) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	counter := &countingWriter{w: tmp}
	if err := c.downloadTo(ctx, url, counter, auth); err != nil {
		tmp.Close()
		return 0, err
	}

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("move into place: %w", err)
	}

	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (c *client) downloadTo(ctx context.Context, url string, dst io.Writer, auth *basicAuth) error {
	if url == "" {
		return ErrEmptyDownloadURL
	}
	if dst == nil {
		return ErrNilWriter
	}

	req := c.transferClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if auth != nil {
		req.SetHeader("Authorization", auth.header())
	}

	resp, err := req.Get(url)
	if err != nil {
		return fmt.Errorf("download file from %s failed: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return fmt.Errorf("download file failed with status %d: %s", resp.StatusCode(), resp.Status())
	}

	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("write downloaded file failed: %w", err)
	}

	return nil
}

// filenameFromURL returns the last path segment of rawURL.
func filenameFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("download url %s has no file name", rawURL)
	}
	return name, nil
}
