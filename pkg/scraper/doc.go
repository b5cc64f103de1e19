// Package scraper ties the pipeline together for one target URL.
//
// New builds the shared pieces once from configuration: a per-host pacer
// (with the slower jpgN.su rule), the HTTP client with cookies and API
// keys, the acquisition engine and, when enabled, a headless browser. Run
// picks the platform handler for the URL, hands it a fresh sites.Run, then
// writes the failure ledger next to the downloads and returns a Report.
//
// Usage:
//
//	s, err := scraper.New(cfg, scraper.WithProgress(true))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	report, err := s.Run(ctx, "https://pixeldrain.com/l/abc123")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(report.Downloaded, "files in", report.Dir)
//
// A handler failure still yields a Report, so callers can show what was
// saved before the error.
package scraper
