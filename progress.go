package client

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Snapshot is the progress view of a status. Only the fields relevant to the
// state are populated.
type Snapshot struct {
	State       JobState `json:"state"`
	Error       string   `json:"error,omitempty"`
	DownloadURL string   `json:"downloadUrl,omitempty"`
	PreviewURL  string   `json:"previewUrl,omitempty"`
}

// SnapshotOf projects a status onto its progress shape.
func SnapshotOf(status *JobStatus) Snapshot {
	switch status.State {
	case StateError:
		return Snapshot{State: status.State, Error: status.Error}
	case StateProcessed:
		return Snapshot{State: status.State, DownloadURL: status.DownloadURL, PreviewURL: status.PreviewURL}
	default:
		return Snapshot{State: status.State}
	}
}

// ProgressReporter writes one indented JSON document per status.
type ProgressReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{w: w}
}

// Report writes the snapshot for status.
func (p *ProgressReporter) Report(status *JobStatus) error {
	content, err := json.MarshalIndent(SnapshotOf(status), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.w, "%s\n", content); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}
