// Package ledger collects terminal download failures during a run and
// writes them to a sidecar report.
package ledger

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/storage"
)

// FileName is the report written into the run directory
const FileName = "failed_urls.txt"

const timeLayout = "2006-01-02 15:04:05"

// FailureRecord is one failed task. It is never changed after creation.
type FailureRecord struct {
	SourceURL      string
	Filename       string
	Classification errs.ErrorType
	Message        string
	Timestamp      time.Time
}

// NewRecord classifies err into a record
func NewRecord(sourceURL, filename string, err error) FailureRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return FailureRecord{
		SourceURL:      sourceURL,
		Filename:       filename,
		Classification: errs.TypeOf(err),
		Message:        msg,
		Timestamp:      time.Now(),
	}
}

// Ledger is an append-only list of failures for one entity
type Ledger struct {
	source  string
	mu      sync.Mutex
	records []FailureRecord
	now     func() time.Time
}

// New creates a ledger for the entity at source
func New(source string) *Ledger {
	return &Ledger{source: source, now: time.Now}
}

// Record appends r
func (l *Ledger) Record(r FailureRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Len returns the number of records
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the records
func (l *Ledger) Records() []FailureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailureRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Render formats the report. attempted is the number of tasks of the run.
func (l *Ledger) Render(attempted int) []byte {
	records := l.Records()
	var b bytes.Buffer
	fmt.Fprintf(&b, "Failed URLs from %s\n", l.source)
	fmt.Fprintf(&b, "Downloaded: %s\n", l.now().Format(timeLayout))
	fmt.Fprintf(&b, "Total failed: %d/%d\n", len(records), attempted)
	b.WriteString(strings.Repeat("=", 80) + "\n\n")
	for _, r := range records {
		fmt.Fprintf(&b, "ERROR: [%s] %s\n", r.Classification, r.Message)
		if r.Filename != "" {
			fmt.Fprintf(&b, "FILE: %s\n", r.Filename)
		}
		fmt.Fprintf(&b, "URL: %s\n", r.SourceURL)
		fmt.Fprintf(&b, "TIME: %s\n", r.Timestamp.Format(timeLayout))
		b.WriteString(strings.Repeat("-", 80) + "\n")
	}
	return b.Bytes()
}

// Flush writes the report into dir and returns its path. An empty ledger
// writes nothing and returns "".
func (l *Ledger) Flush(dir string, attempted int) (string, error) {
	if l.Len() == 0 {
		return "", nil
	}
	path := filepath.Join(dir, FileName)
	if err := storage.WriteFileAtomic(path, bytes.NewReader(l.Render(attempted))); err != nil {
		return "", fmt.Errorf("failed to write failure report: %w", err)
	}
	return path, nil
}
