package scraper

import (
	"path/filepath"

	"mediagrab/internal/downloader"
	"mediagrab/pkg/ui"
)

// progressObserver feeds run outcomes into the terminal progress line
type progressObserver struct {
	display *ui.ProgressDisplay
}

func (o *progressObserver) Queued(n int) { o.display.AddTotal(n) }

func (o *progressObserver) Finished(res downloader.Result) {
	name := filepath.Base(res.Path)
	if res.Path == "" {
		name = res.Task.URL
	}
	switch res.Outcome {
	case downloader.OutcomeSuccess:
		o.display.CompleteDownload(name, res.Bytes)
	case downloader.OutcomeSkipped:
		o.display.SkipDownload(name)
	case downloader.OutcomeFailed:
		o.display.FailDownload(name, res.Err)
	}
}
