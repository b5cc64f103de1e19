// Package filter separates real media from thumbnails, avatars and UI
// assets.
//
// Phase 1 (PatternFilter) looks at the URL text only and is deterministic.
// Phase 2 (PropertyProber) issues a HEAD request and a ranged GET for the
// first 32 KiB, then decodes the image header to read its dimensions:
//
//	kept, rejected := filter.NewPatternFilter(filter.DefaultPolicy()).Partition(urls)
//	prober := filter.NewPropertyProber(client, filter.DefaultProbeConfig(), log)
//	res := prober.FilterAll(ctx, kept, 0.8)
//
// Phase 2 is biased towards keeping: any probe that cannot reach a verdict
// keeps the candidate.
package filter
