package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay renders a single updating progress line for one run
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	entity     string
	total      int
	downloaded int
	skipped    int
	errors     int
	current    string
	startTime  time.Time
	bytes      int64
	isDebug    bool
}

// NewProgressDisplay creates a display for entity. In debug mode every
// file gets its own line instead of the updating bar.
func NewProgressDisplay(entity string, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       Output,
		entity:    entity,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// SetOutput redirects the display
func (p *ProgressDisplay) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

// AddTotal grows the expected file count
func (p *ProgressDisplay) AddTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// CompleteDownload marks a file as saved
func (p *ProgressDisplay) CompleteDownload(name string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded++
	p.bytes += size
	p.current = name

	if p.isDebug {
		fmt.Fprintf(p.out, "%s %s • %s\n", Green("✓"), name, FormatBytes(size))
		return
	}
	p.printProgress()
}

// SkipDownload marks a file that was already on disk
func (p *ProgressDisplay) SkipDownload(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	if p.isDebug {
		fmt.Fprintf(p.out, "%s %s already exists\n", Dim("•"), name)
		return
	}
	p.printProgress()
}

// FailDownload marks a file as failed
func (p *ProgressDisplay) FailDownload(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errors++
	if p.isDebug {
		fmt.Fprintf(p.out, "%s Failed: %s - %v\n", Red("✗"), name, err)
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) printProgress() {
	if IsQuietMode() {
		return
	}
	done := p.downloaded + p.skipped + p.errors
	progress := 0.0
	if p.total > 0 {
		progress = float64(done) / float64(p.total)
	}
	if progress > 1 {
		progress = 1
	}
	const barWidth = 20
	filled := int(progress * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %s • %s",
		Cyan(p.entity),
		bar,
		done,
		p.total,
		FormatBytes(p.bytes),
		p.calculateETA(done),
	)
	if p.current != "" {
		line += " • " + p.current
	}
	if p.errors > 0 {
		line += " • " + Red(fmt.Sprintf("%d errors", p.errors))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

func (p *ProgressDisplay) calculateETA(done int) string {
	if done == 0 || p.total <= done {
		return "calculating..."
	}
	rate := float64(done) / time.Since(p.startTime).Seconds()
	if rate == 0 {
		return "calculating..."
	}
	return FormatDuration(time.Duration(float64(p.total-done)/rate) * time.Second)
}

// Counts returns downloaded, skipped and failed so far
func (p *ProgressDisplay) Counts() (downloaded, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloaded, p.skipped, p.errors
}

// Summary is the end-of-run report
type Summary struct {
	Target     string
	Mode       string
	Dir        string
	Pages      int64
	Found      int64
	Filtered   int64
	Downloaded int64
	Skipped    int64
	Failed     int64
	Bytes      int64
	Elapsed    time.Duration
	// LedgerPath is empty when nothing failed
	LedgerPath string
}

// PrintSummary writes s to w
func PrintSummary(w io.Writer, s Summary) {
	status := Green("✓")
	if s.Failed > 0 {
		status = Yellow("!")
	}
	fmt.Fprintf(w, "\n\n%s %s %s\n", status, Cyan(s.Mode), s.Target)
	fmt.Fprintf(w, "  %s %d pages • %d found • %d filtered\n", Dim("•"), s.Pages, s.Found, s.Filtered)
	fmt.Fprintf(w, "  %s %d downloaded • %d skipped • %d failed\n", Dim("•"), s.Downloaded, s.Skipped, s.Failed)
	fmt.Fprintf(w, "  %s %s in %s\n", Dim("•"), FormatBytes(s.Bytes), FormatDuration(s.Elapsed))
	if s.Dir != "" {
		fmt.Fprintf(w, "  %s saved to %s\n", Dim("•"), s.Dir)
	}
	if s.LedgerPath != "" {
		fmt.Fprintf(w, "  %s failures listed in %s\n", Dim("•"), Yellow(s.LedgerPath))
	}
}

// PrintSummaryLine writes the counts of s to w on a single line
func PrintSummaryLine(w io.Writer, s Summary) {
	fmt.Fprintf(w, "%s: %d found, %d filtered, %d downloaded, %d skipped, %d failed",
		s.Mode, s.Found, s.Filtered, s.Downloaded, s.Skipped, s.Failed)
	if s.LedgerPath != "" {
		fmt.Fprintf(w, " (see %s)", s.LedgerPath)
	}
	fmt.Fprintln(w)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
