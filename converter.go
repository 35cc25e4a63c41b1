package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-querystring/query"
)

// Convert submits the job and, unless a callback URL was supplied, polls it to
// a terminal state. Callback jobs return a queued result straight after submit.
func (c *client) Convert(ctx context.Context, opts ConversionOptions) (*ConversionResult, error) {
	submitted, err := c.Submit(ctx, opts)
	if err != nil {
		return nil, c.reportError(ctx, OperationSubmit, err, slog.String("endpoint", opts.Endpoint))
	}

	auth := opts.Parameters.credentials()

	if opts.Parameters.has(ParamCallbackURL) {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "callback url supplied, skipping polling",
			slog.String("uuid", submitted.UUID),
		)
		return &ConversionResult{State: StateQueued, UUID: submitted.UUID, auth: auth}, nil
	}

	if submitted.UUID == "" {
		err := &RemoteError{StatusCode: http.StatusOK, Message: string(submitted.Body), Err: ErrMissingUUID}
		return nil, c.reportError(ctx, OperationSubmit, err, slog.String("endpoint", opts.Endpoint))
	}

	status, err := c.WaitForConversion(ctx, opts, submitted.UUID)
	if err != nil {
		return nil, c.reportError(ctx, OperationConversion, err, slog.String("uuid", submitted.UUID))
	}

	return status, nil
}

// Submit builds and sends the initial conversion request.
func (c *client) Submit(ctx context.Context, opts ConversionOptions) (*SubmitResponse, error) {
	req, err := BuildRequest(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	r := c.restyClient.R().
		SetContext(ctx).
		SetContentLength(true).
		SetBody(req.Body)
	for name := range req.Header {
		if name == "Content-Length" {
			continue
		}
		r.SetHeader(name, req.Header.Get(name))
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%s to %s failed: %w", OperationSubmit, req.URL, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, newRemoteError(resp.StatusCode(), body)
	}

	result := SubmitResponse{Body: body}
	if err := json.Unmarshal(body, &result); err != nil {
		// Callback-mode replies need not be JSON; Convert decides whether a uuid is required.
		result.UUID = ""
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "conversion submitted",
		slog.String("endpoint", req.URL),
		slog.String("uuid", result.UUID),
	)

	return &result, nil
}

// GetStatus fetches the current status of a job once.
func (c *client) GetStatus(ctx context.Context, opts ConversionOptions, uuid string) (*JobStatus, error) {
	if uuid == "" {
		return nil, ErrMissingUUID
	}

	values, err := query.Values(statusQuery{UUID: uuid})
	if err != nil {
		return nil, fmt.Errorf("%s: encode query: %w", OperationGetStatus, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.requestTimeout())
	defer cancel()

	r := c.restyClient.R().
		SetContext(ctx).
		SetQueryParamsFromValues(values)
	if auth := opts.Parameters.credentials(); auth != nil {
		r.SetHeader("Authorization", auth.header())
	}

	resp, err := r.Get(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s for uuid %s failed: %w", OperationGetStatus, uuid, err)
	}

	if !resp.IsSuccess() {
		return nil, errStatus(OperationGetStatus, resp.StatusCode(), resp.Status())
	}

	status, err := decodeJobStatus(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s for uuid %s: decode response: %w", OperationGetStatus, uuid, err)
	}

	if status.UUID == "" {
		status.UUID = uuid
	}

	return status, nil
}

// newRemoteError prefers the service's JSON error message over the raw body.
func newRemoteError(statusCode int, body []byte) *RemoteError {
	var payload remoteErrorBody
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		return &RemoteError{StatusCode: statusCode, Message: *payload.Error}
	}
	return &RemoteError{StatusCode: statusCode, Message: string(body)}
}
