// Package fetch is the HTTP client used by every stage of a run.
//
// A Client sends browser-like headers, paces requests per host through a
// ratelimit.Limiter, carries cookies loaded from a browser-exported
// Netscape cookie file and attaches per-host Basic auth API keys.
//
// Transport failures come back as transient errors from pkg/errors; status
// codes are classified by CheckStatus:
//
//	resp, err := client.Open(ctx, mediaURL, fetch.Headers{"Referer": page})
//	if err != nil {
//		if errors.IsRetryable(errors.TypeOf(err)) {
//			// back off and try again
//		}
//	}
//
// Forum pages that answer with a login form instead of the thread are
// detected by IsLoginWall.
package fetch
