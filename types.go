package client

import (
	"encoding/json"
	"time"
)

// InputMode selects how the service obtains the source document.
type InputMode string

// JobState enumerates conversion job states.
type JobState string

// Terminal reports whether the state ends polling.
func (s JobState) Terminal() bool {
	return s == StateProcessed || s == StateError
}

// Operation enumerates named steps for error messages and logs.
type Operation string

const (
	OperationBuildRequest Operation = "build request"
	OperationSubmit       Operation = "submit conversion"
	OperationGetStatus    Operation = "get status"
	OperationConversion   Operation = "conversion"
	OperationDownload     Operation = "download output"
)

// Parameters are the form fields sent with the conversion request.
// A nil map is treated as missing.
type Parameters map[string]string

// Mode returns the declared input mode.
func (p Parameters) Mode() InputMode {
	return InputMode(p[ParamInput])
}

func (p Parameters) has(key string) bool {
	_, ok := p[key]
	return ok
}

// credentials returns the basic-auth pair when both halves are present.
func (p Parameters) credentials() *basicAuth {
	if !p.has(ParamUsername) || !p.has(ParamPassword) {
		return nil
	}
	return &basicAuth{username: p[ParamUsername], password: p[ParamPassword]}
}

// ProgressFunc receives every non-terminal status while polling.
type ProgressFunc func(status *JobStatus)

// ConversionOptions describe a single conversion.
type ConversionOptions struct {
	Endpoint   string
	Parameters Parameters

	// RequestTimeout bounds each HTTP exchange. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ConversionTimeout bounds the accumulated poll wait. Zero means unbounded.
	ConversionTimeout time.Duration

	ProgressCallback ProgressFunc
}

func (o ConversionOptions) requestTimeout() time.Duration {
	if o.RequestTimeout > 0 {
		return o.RequestTimeout
	}
	return DefaultRequestTimeout
}

// JobStatus is a status document returned by the service.
type JobStatus struct {
	State       JobState `json:"state"`
	UUID        string   `json:"uuid,omitempty"`
	DownloadURL string   `json:"downloadUrl,omitempty"`
	PreviewURL  string   `json:"previewUrl,omitempty"`
	Error       string   `json:"error,omitempty"`

	// Raw is the full decoded payload, including fields this package does not model.
	Raw map[string]any `json:"-"`

	auth *basicAuth
}

// ConversionResult is what Convert hands back to the caller.
type ConversionResult = JobStatus

// decodeJobStatus parses a status document, keeping the raw payload.
func decodeJobStatus(body []byte) (*JobStatus, error) {
	var status JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &status.Raw); err != nil {
		return nil, err
	}
	return &status, nil
}

type basicAuth struct {
	username string
	password string
}

// SubmitResponse is the accepted reply to a submit request.
type SubmitResponse struct {
	UUID string `json:"uuid"`

	Body []byte `json:"-"`
}

// remoteErrorBody is the error document the service may return with a failed submit.
type remoteErrorBody struct {
	Error *string `json:"error"`
}

// statusQuery is encoded into the poll URL.
type statusQuery struct {
	UUID string `url:"uuid"`
}
