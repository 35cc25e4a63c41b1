package client

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is a submit request ready to be sent.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Boundary returns the multipart boundary declared in Content-Type, or "" for form bodies.
func (r *Request) Boundary() string {
	ct := r.Header.Get("Content-Type")
	_, rest, ok := strings.Cut(ct, "boundary=")
	if !ok {
		return ""
	}
	return rest
}

// ValidateOptions checks the options without touching the network or filesystem.
func ValidateOptions(opts ConversionOptions) error {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return &ValidationError{Err: ErrMissingEndpoint}
	}

	if opts.Parameters == nil {
		return &ValidationError{Err: ErrMissingParameters}
	}

	switch opts.Parameters.Mode() {
	case InputUpload:
		if !opts.Parameters.has(ParamFile) {
			return &ValidationError{Err: ErrMissingFile}
		}
	case InputDownload:
		if !opts.Parameters.has(ParamURL) {
			return &ValidationError{Err: ErrMissingURL}
		}
	}

	return nil
}

// BuildRequest validates the options and encodes the submit request.
// Upload mode produces a multipart body carrying the file, every other mode a
// URL-encoded form.
func BuildRequest(opts ConversionOptions) (*Request, error) {
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	header := make(http.Header)
	var body []byte

	if opts.Parameters.Mode() == InputUpload {
		boundary, err := newMultipartBoundary()
		if err != nil {
			return nil, fmt.Errorf("%s: generate boundary: %w", OperationBuildRequest, err)
		}

		body, err = encodeMultipart(opts.Parameters, boundary)
		if err != nil {
			return nil, err
		}
		header.Set("Content-Type", contentTypeMultipart+"; boundary="+boundary)
	} else {
		body = []byte(encodeForm(opts.Parameters))
		header.Set("Content-Type", contentTypeForm)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	if auth := opts.Parameters.credentials(); auth != nil {
		header.Set("Authorization", auth.header())
	}

	return &Request{
		Method:  http.MethodPost,
		URL:     opts.Endpoint,
		Header:  header,
		Body:    body,
		Timeout: opts.requestTimeout(),
	}, nil
}

// newMultipartBoundary derives a boundary from a time-ordered UUID.
func newMultipartBoundary() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return multipartBoundaryDelim + strings.ReplaceAll(id.String(), "-", ""), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(params Parameters, boundary string) ([]byte, error) {
	path := params[ParamFile]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileNotFoundError{Path: path, Err: err}
	}
	if len(data) == 0 {
		return nil, &FileNotFoundError{Path: path}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("%s: %w", OperationBuildRequest, err)
	}

	part, err := w.CreateFormFile(multipartFileField, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: create file part: %w", OperationBuildRequest, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%s: write file part: %w", OperationBuildRequest, err)
	}

	for _, name := range sortedKeys(params) {
		if name == ParamFile {
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(name)))
		h.Set("Content-Type", contentTypeText)

		field, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("%s: create part %s: %w", OperationBuildRequest, name, err)
		}
		if _, err := field.Write([]byte(params[name])); err != nil {
			return nil, fmt.Errorf("%s: write part %s: %w", OperationBuildRequest, name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: close multipart body: %w", OperationBuildRequest, err)
	}

	return buf.Bytes(), nil
}

func encodeForm(params Parameters) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func sortedKeys(params Parameters) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *basicAuth) header() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.username+":"+a.password))
}
