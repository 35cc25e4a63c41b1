package client

import (
	"context"
	"io"
)

// Info provides metadata about the client
type Info interface {
	Name() string
	Version() string
}

// Converter submits conversion jobs and follows them to a terminal state
type Converter interface {
	Convert(ctx context.Context, opts ConversionOptions) (*ConversionResult, error)
	Submit(ctx context.Context, opts ConversionOptions) (*SubmitResponse, error)
	GetStatus(ctx context.Context, opts ConversionOptions, uuid string) (*JobStatus, error)
	WaitForConversion(ctx context.Context, opts ConversionOptions, uuid string) (*JobStatus, error)
}

// Downloader handles artifact download operations
type Downloader interface {
	DownloadFile(ctx context.Context, url string) ([]byte, error)
	DownloadFileTo(ctx context.Context, url string, dst io.Writer) error
	DownloadOutput(ctx context.Context, result *ConversionResult, outputDir, filename string) (string, error)
}

// Client combines all conversion service operations
type Client interface {
	Info
	Converter
	Downloader
}
