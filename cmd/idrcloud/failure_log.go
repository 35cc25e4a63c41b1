package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var failureLogMu sync.Mutex

// logFailure appends one tab-separated line per failed job. An empty path disables it.
func logFailure(path, uuid, target string, err error) error {
	if path == "" || err == nil {
		return nil
	}

	if uuid == "" {
		uuid = "unknown"
	}
	message := strings.ReplaceAll(err.Error(), "\n", " ")
	line := fmt.Sprintf("%s\tlevel=ERROR\tuuid=%s\ttarget=%s\tmessage=%s\n",
		time.Now().Format(time.RFC3339), uuid, target, message)

	failureLogMu.Lock()
	defer failureLogMu.Unlock()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return mkErr
		}
	}

	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if openErr != nil {
		return openErr
	}
	defer f.Close()

	_, writeErr := f.WriteString(line)
	return writeErr
}

// withFailureLog records err and folds any logging failure into the returned error.
func withFailureLog(path, uuid, target string, err error) error {
	if logErr := logFailure(path, uuid, target, err); logErr != nil {
		return fmt.Errorf("%w; also failed to write fail log: %v", err, logErr)
	}
	return err
}
