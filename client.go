package client

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

type client struct {
	restyClient    *resty.Client
	transferClient *resty.Client
	pollInterval   time.Duration
	progress       *ProgressReporter
	logger         *slog.Logger
	auth           *basicAuth

	// sleep blocks between polls; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Client = (*client)(nil)

type Option func(*client)

// WithRequestTimeout caps every HTTP exchange of the API client at timeout.
// By default there is no cap and ConversionOptions.RequestTimeout alone bounds
// each submit and poll; with a cap the shorter of the two wins.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *client) {
		if timeout > 0 {
			c.restyClient.SetTimeout(timeout)
		}
	}
}

// WithPollInterval overrides the wait between status polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithBasicAuth sets credentials used by downloads whose result carries none.
func WithBasicAuth(username, password string) Option {
	return func(c *client) {
		c.auth = &basicAuth{username: username, password: password}
	}
}

// WithRestyClient allows callers to provide a preconfigured API client.
func WithRestyClient(restyClient *resty.Client) Option {
	return func(c *client) {
		if restyClient != nil {
			c.restyClient = restyClient
		}
	}
}

// WithTransferClient overrides the client used for artifact downloads.
func WithTransferClient(transfer *resty.Client) Option {
	return func(c *client) {
		if transfer != nil {
			c.transferClient = transfer
		}
	}
}

// WithProgressWriter sends a JSON snapshot of every polled status to w.
func WithProgressWriter(w io.Writer) Option {
	return func(c *client) {
		if w != nil {
			c.progress = NewProgressReporter(w)
		}
	}
}

// WithLogger sets the error-reporting logger. Every failure returned by
// Convert or DownloadOutput is also logged here.
func WithLogger(logger *slog.Logger) Option {
	return func(c *client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...Option) Client {
	c := &client{
		restyClient:  newDefaultAPIClient(),
		pollInterval: DefaultPollInterval,
		progress:     NewProgressReporter(io.Discard),
		logger:       slog.New(slog.DiscardHandler),
		sleep:        sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.restyClient == nil {
		c.restyClient = newDefaultAPIClient()
	}

	if c.transferClient == nil {
		c.transferClient = newTransferClient(DownloadTimeout)
	}

	return c
}

// Name returns the service name.
func (c *client) Name() string {
	return ServiceName
}

// Version returns the client library version.
func (c *client) Version() string {
	return ClientVersion
}

// newDefaultAPIClient builds the submit/poll client. Retries stay off because
// the poll loop owns its transport retry budget. No client timeout is set;
// each request carries its own deadline.
func newDefaultAPIClient() *resty.Client {
	return resty.New().
		SetHeader("User-Agent", UserAgent).
		SetRetryCount(0)
}

func newTransferClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", UserAgent).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
}

// reportError logs err on the error-reporting logger and returns it unchanged.
func (c *client) reportError(ctx context.Context, operation Operation, err error, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	attrs = append(attrs, slog.String("operation", string(operation)), slog.String("error", err.Error()))
	c.logger.LogAttrs(ctx, slog.LevelError, "conversion client failure", attrs...)
	return err
}
