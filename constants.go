package client

import "time"

const (
	ServiceName           = "idrcloud"
	ClientVersion         = "0.1.0"
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DownloadTimeout       = 5 * time.Minute
	UserAgent             = "idrcloud-client-go/" + ClientVersion
)

// Reserved parameter keys. Any other key is forwarded to the service verbatim.
const (
	ParamInput       = "input"
	ParamFile        = "file"
	ParamURL         = "url"
	ParamUsername    = "username"
	ParamPassword    = "password"
	ParamCallbackURL = "callbackUrl"
)

// Input modes understood by the service.
const (
	InputUpload   InputMode = "upload"
	InputDownload InputMode = "download"
	InputJPedal   InputMode = "jpedal"
	InputBuildVu  InputMode = "buildvu"
	InputFormVu   InputMode = "formvu"
)

// Job states reported by the status endpoint.
const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateProcessed  JobState = "processed"
	StateError      JobState = "error"
)

const (
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
	contentTypeText      = "text/plain"

	multipartFileField     = "file"
	multipartBoundaryDelim = "------------------------"
)
