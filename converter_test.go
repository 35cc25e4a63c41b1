package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStatusServer serves a submit on POST and replays statuses on GET,
// repeating the last one once the list is exhausted.
func newStatusServer(t *testing.T, statuses []string, submits, polls *int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			atomic.AddInt32(submits, 1)
			fmt.Fprint(w, `{"uuid":"job-1"}`)
		case http.MethodGet:
			if r.URL.Query().Get("uuid") != "job-1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			n := int(atomic.AddInt32(polls, 1)) - 1
			if n >= len(statuses) {
				n = len(statuses) - 1
			}
			fmt.Fprint(w, statuses[n])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func downloadOptions(endpoint string) ConversionOptions {
	return ConversionOptions{
		Endpoint:   endpoint,
		Parameters: Parameters{"input": "download", "url": "https://example.com/doc.pdf"},
	}
}

func TestConvert_PollsUntilProcessed(t *testing.T) {
	var submits, polls int32
	ts := newStatusServer(t, []string{
		`{"state":"processing","uuid":"job-1","progress":"10"}`,
		`{"state":"processing","uuid":"job-1","progress":"60"}`,
		`{"state":"processed","uuid":"job-1","downloadUrl":"https://example.com/out/job-1.zip","previewUrl":"https://example.com/preview/job-1","extra":"x"}`,
	}, &submits, &polls)

	var progress bytes.Buffer
	c, sleeps := newTestClient(t, WithProgressWriter(&progress))

	var callbacks []*JobStatus
	opts := downloadOptions(ts.URL)
	opts.ProgressCallback = func(s *JobStatus) { callbacks = append(callbacks, s) }

	result, err := c.Convert(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, StateProcessed, result.State)
	assert.Equal(t, "job-1", result.UUID)
	assert.Equal(t, "https://example.com/out/job-1.zip", result.DownloadURL)
	assert.Equal(t, "https://example.com/preview/job-1", result.PreviewURL)
	assert.Equal(t, "x", result.Raw["extra"])

	assert.Equal(t, int32(1), atomic.LoadInt32(&submits))
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
	assert.Equal(t, 2, sleeps.count())
	for _, d := range sleeps.waits {
		assert.Equal(t, 500*time.Millisecond, d)
	}

	require.Len(t, callbacks, 2)
	assert.Equal(t, "60", callbacks[1].Raw["progress"])

	snaps := decodeSnapshots(t, &progress)
	require.Len(t, snaps, 3)
	assert.Equal(t, map[string]any{"state": "processing"}, snaps[0])
	assert.Equal(t, map[string]any{"state": "processing"}, snaps[1])
	assert.Equal(t, map[string]any{
		"state":       "processed",
		"downloadUrl": "https://example.com/out/job-1.zip",
		"previewUrl":  "https://example.com/preview/job-1",
	}, snaps[2])
}

func TestConvert_ProcessedWithoutPreview(t *testing.T) {
	var submits, polls int32
	ts := newStatusServer(t, []string{
		`{"state":"processed","uuid":"job-1","downloadUrl":"https://example.com/out/job-1.zip"}`,
	}, &submits, &polls)

	var progress bytes.Buffer
	c, _ := newTestClient(t, WithProgressWriter(&progress))

	_, err := c.Convert(context.Background(), downloadOptions(ts.URL))
	require.NoError(t, err)

	snaps := decodeSnapshots(t, &progress)
	require.Len(t, snaps, 1)
	assert.Equal(t, map[string]any{
		"state":       "processed",
		"downloadUrl": "https://example.com/out/job-1.zip",
	}, snaps[0])
}

func TestConvert_ValidationMakesNoNetworkCalls(t *testing.T) {
	tests := []struct {
		name    string
		opts    ConversionOptions
		wantErr error
	}{
		{name: "missing endpoint", opts: ConversionOptions{Parameters: Parameters{}}, wantErr: ErrMissingEndpoint},
		{name: "nil parameters", opts: ConversionOptions{Endpoint: "http://service.invalid"}, wantErr: ErrMissingParameters},
		{name: "upload without file", opts: ConversionOptions{Endpoint: "http://service.invalid", Parameters: Parameters{"input": "upload"}}, wantErr: ErrMissingFile},
		{name: "download without url", opts: ConversionOptions{Endpoint: "http://service.invalid", Parameters: Parameters{"input": "download"}}, wantErr: ErrMissingURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
				atomic.AddInt32(&calls, 1)
				return jsonResponse(req, http.StatusOK, `{"uuid":"x"}`), nil
			})
			c, _ := newTestClient(t, WithRestyClient(restyWithTransport(rt)))

			_, err := c.Convert(context.Background(), tt.opts)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
		})
	}
}

func TestConvert_PollExhaustedAfterFourAttempts(t *testing.T) {
	var submits, polls int32
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			atomic.AddInt32(&submits, 1)
			return jsonResponse(req, http.StatusOK, `{"uuid":"job-1"}`), nil
		}
		atomic.AddInt32(&polls, 1)
		return nil, errors.New("connection refused")
	})

	var progress bytes.Buffer
	c, _ := newTestClient(t, WithRestyClient(restyWithTransport(rt)), WithProgressWriter(&progress))

	_, err := c.Convert(context.Background(), downloadOptions("http://service.invalid/buildvu"))

	var exhausted *PollExhaustedError
	require.True(t, errors.As(err, &exhausted), "expected PollExhaustedError, got %v", err)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, "job-1", exhausted.UUID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&submits))
	assert.Equal(t, int32(4), atomic.LoadInt32(&polls))
	assert.Zero(t, progress.Len())
}

func TestConvert_TransportFailuresResetAfterValidResponse(t *testing.T) {
	var polls int32
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			return jsonResponse(req, http.StatusOK, `{"uuid":"job-1"}`), nil
		}
		switch n := atomic.AddInt32(&polls, 1); {
		case n <= 3:
			return nil, errors.New("connection reset")
		case n == 4:
			return jsonResponse(req, http.StatusOK, `{"state":"processing","uuid":"job-1"}`), nil
		case n <= 7:
			return nil, errors.New("connection reset")
		default:
			return jsonResponse(req, http.StatusOK, `{"state":"processed","uuid":"job-1","downloadUrl":"https://example.com/a.zip"}`), nil
		}
	})

	c, _ := newTestClient(t, WithRestyClient(restyWithTransport(rt)))

	result, err := c.Convert(context.Background(), downloadOptions("http://service.invalid/buildvu"))
	require.NoError(t, err)
	assert.Equal(t, StateProcessed, result.State)
	assert.Equal(t, int32(8), atomic.LoadInt32(&polls))
}

func TestConvert_ConversionTimeout(t *testing.T) {
	tests := []struct {
		name      string
		interval  time.Duration
		wantPolls int32
	}{
		{name: "default interval", interval: DefaultPollInterval, wantPolls: 3},
		{name: "shorter interval", interval: 300 * time.Millisecond, wantPolls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var submits, polls int32
			ts := newStatusServer(t, []string{`{"state":"processing","uuid":"job-1"}`}, &submits, &polls)

			c, _ := newTestClient(t, WithPollInterval(tt.interval))

			opts := downloadOptions(ts.URL)
			opts.ConversionTimeout = time.Second

			_, err := c.Convert(context.Background(), opts)

			var timeout *ConversionTimeoutError
			require.True(t, errors.As(err, &timeout), "expected ConversionTimeoutError, got %v", err)
			assert.Greater(t, timeout.Elapsed, time.Second)
			assert.Equal(t, time.Second, timeout.Timeout)
			assert.Equal(t, tt.wantPolls, atomic.LoadInt32(&polls))
		})
	}
}

func TestConvert_CallbackURLSkipsPolling(t *testing.T) {
	var submits, polls int32
	ts := newStatusServer(t, []string{`{"state":"processing"}`}, &submits, &polls)

	c, sleeps := newTestClient(t)

	opts := downloadOptions(ts.URL)
	opts.Parameters["callbackUrl"] = "https://example.com/hook"

	result, err := c.Convert(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, StateQueued, result.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&submits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&polls))
	assert.Zero(t, sleeps.count())
}

func TestConvert_CallbackURLAcceptsNonJSONReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "accepted")
	}))
	defer ts.Close()

	c, _ := newTestClient(t)

	opts := downloadOptions(ts.URL)
	opts.Parameters["callbackUrl"] = "https://example.com/hook"

	result, err := c.Convert(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, result.State)
}

func TestConvert_RemoteError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{name: "json error field", status: http.StatusBadRequest, body: `{"error":"Missing input"}`, wantMessage: "Missing input"},
		{name: "json without error field", status: http.StatusUnauthorized, body: `{"reason":"nope"}`, wantMessage: `{"reason":"nope"}`},
		{name: "plain body", status: http.StatusInternalServerError, body: "boom", wantMessage: "boom"},
		{name: "non-200 success code", status: http.StatusAccepted, body: `{"uuid":"x"}`, wantMessage: `{"uuid":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var polls int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					atomic.AddInt32(&polls, 1)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			c, _ := newTestClient(t)

			_, err := c.Convert(context.Background(), downloadOptions(ts.URL))

			var remote *RemoteError
			require.True(t, errors.As(err, &remote), "expected RemoteError, got %v", err)
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, tt.wantMessage, remote.Message)
			assert.Equal(t, int32(0), atomic.LoadInt32(&polls))
		})
	}
}

func TestConvert_MissingUUID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"state":"queued"}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(t)

	_, err := c.Convert(context.Background(), downloadOptions(ts.URL))
	assert.ErrorIs(t, err, ErrMissingUUID)
}

func TestConvert_ErrorStateIsTerminal(t *testing.T) {
	var submits, polls int32
	ts := newStatusServer(t, []string{
		`{"state":"queued","uuid":"job-1"}`,
		`{"state":"error","uuid":"job-1","error":"Invalid PDF","errorCode":"1100"}`,
		`{"state":"processed","uuid":"job-1"}`,
	}, &submits, &polls)

	var progress bytes.Buffer
	c, _ := newTestClient(t, WithProgressWriter(&progress))

	_, err := c.Convert(context.Background(), downloadOptions(ts.URL))

	var convErr *ConversionError
	require.True(t, errors.As(err, &convErr), "expected ConversionError, got %v", err)
	assert.Equal(t, "Invalid PDF", convErr.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))

	snaps := decodeSnapshots(t, &progress)
	require.Len(t, snaps, 2)
	assert.Equal(t, map[string]any{"state": "queued"}, snaps[0])
	assert.Equal(t, map[string]any{"state": "error", "error": "Invalid PDF"}, snaps[1])
}

func TestConvert_BasicAuthOnSubmitAndPoll(t *testing.T) {
	var unauthorized int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "secret" {
			atomic.AddInt32(&unauthorized, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"uuid":"job-1"}`)
			return
		}
		fmt.Fprint(w, `{"state":"processed","uuid":"job-1","downloadUrl":"https://example.com/a.zip"}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(t)

	opts := downloadOptions(ts.URL)
	opts.Parameters["username"] = "user"
	opts.Parameters["password"] = "secret"

	result, err := c.Convert(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateProcessed, result.State)
	assert.Equal(t, int32(0), atomic.LoadInt32(&unauthorized))
	require.NotNil(t, result.auth)
}

func TestConvert_NonSuccessPollCountsAsFailure(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"uuid":"job-1"}`)
			return
		}
		atomic.AddInt32(&polls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c, _ := newTestClient(t)

	_, err := c.Convert(context.Background(), downloadOptions(ts.URL))

	var exhausted *PollExhaustedError
	require.True(t, errors.As(err, &exhausted), "expected PollExhaustedError, got %v", err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&polls))
}

func TestConvert_ContextCancelledWhileWaiting(t *testing.T) {
	var submits, polls int32
	ts := newStatusServer(t, []string{`{"state":"processing","uuid":"job-1"}`}, &submits, &polls)

	c, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Convert(ctx, downloadOptions(ts.URL))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestConvert_ReportsFailuresToLogger(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"Trial expired"}`)
	}))
	defer ts.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError}))

	var progress bytes.Buffer
	c, _ := newTestClient(t, WithLogger(logger), WithProgressWriter(&progress))

	_, err := c.Convert(context.Background(), downloadOptions(ts.URL))
	require.Error(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, string(OperationSubmit), record["operation"])
	assert.Equal(t, err.Error(), record["error"])
	assert.Zero(t, progress.Len(), "errors never reach the progress channel")
}

func TestGetStatus_EmptyUUID(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetStatus(context.Background(), downloadOptions("http://service.invalid"), "")
	assert.ErrorIs(t, err, ErrMissingUUID)
}

// newSlowServer answers submits and polls after delay.
func newSlowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"uuid":"job-1"}`)
			return
		}
		fmt.Fprint(w, `{"state":"processing","uuid":"job-1"}`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRequestTimeout_BoundsEachExchange(t *testing.T) {
	ts := newSlowServer(t, 200*time.Millisecond)

	tests := []struct {
		name           string
		clientOpts     []Option
		requestTimeout time.Duration
		wantErr        bool
	}{
		{name: "per-call timeout longer than the response", requestTimeout: 5 * time.Second},
		{name: "per-call timeout shorter than the response", requestTimeout: 50 * time.Millisecond, wantErr: true},
		{
			name:           "client ceiling below the per-call timeout",
			clientOpts:     []Option{WithRequestTimeout(50 * time.Millisecond)},
			requestTimeout: 5 * time.Second,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.clientOpts...)

			opts := downloadOptions(ts.URL)
			opts.RequestTimeout = tt.requestTimeout

			submitted, submitErr := c.Submit(context.Background(), opts)
			_, pollErr := c.GetStatus(context.Background(), opts, "job-1")

			if tt.wantErr {
				require.Error(t, submitErr)
				require.Error(t, pollErr)
				return
			}
			require.NoError(t, submitErr)
			require.NoError(t, pollErr)
			assert.Equal(t, "job-1", submitted.UUID)
		})
	}
}

func TestRequestTimeout_ShortDeadlineIsContextError(t *testing.T) {
	ts := newSlowServer(t, 200*time.Millisecond)
	c, _ := newTestClient(t)

	opts := downloadOptions(ts.URL)
	opts.RequestTimeout = 50 * time.Millisecond

	_, err := c.Submit(context.Background(), opts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
