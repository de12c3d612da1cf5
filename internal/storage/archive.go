package storage

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Archive appends every accepted message to a JSONL file per tab and
// message type: baseDir/<date>/tab-<id>/<type>/<session>.jsonl.
type Archive struct {
	baseDir    string
	session    string
	bufferSize int
	maxSizeMB  int

	mu      sync.Mutex
	writers map[string]*JSONLWriter
}

// NewArchive returns an archive whose files are named after the process
// start time.
func NewArchive(baseDir string, bufferSize, maxSizeMB int) *Archive {
	return &Archive{
		baseDir:    baseDir,
		session:    strconv.FormatInt(time.Now().Unix(), 10),
		bufferSize: bufferSize,
		maxSizeMB:  maxSizeMB,
		writers:    make(map[string]*JSONLWriter),
	}
}

// Append queues msg. Errors are logged by the writer and returned for
// metrics; the caller does not retry.
func (a *Archive) Append(msg types.Message) error {
	return a.writer(TabDir(msg.TabID), string(msg.Type)).Write(msg)
}

func (a *Archive) writer(tabDir, kind string) *JSONLWriter {
	subDir := tabDir + "/" + kind

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.writers[subDir]; ok {
		return w
	}
	w := NewJSONLWriter(a.baseDir, subDir, a.session, a.bufferSize, a.maxSizeMB)
	a.writers[subDir] = w
	slog.Info("Created new JSONL writer", "tab", tabDir, "type", kind)
	return w
}

// Close closes all writers.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var lastErr error
	for subDir, w := range a.writers {
		if err := w.Close(); err != nil {
			slog.Error("Failed to close writer", "subdir", subDir, "error", err)
			lastErr = err
		}
	}
	a.writers = make(map[string]*JSONLWriter)
	return lastErr
}
