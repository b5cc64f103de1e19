package filter

import (
	"context"

	"mediagrab/pkg/extract"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/retry"
)

// Result is the outcome of a phase 2 pass
type Result struct {
	Accepted []string
	Rejected []Rejection
	// Fallback is set when the rejection ratio exceeded the guard and
	// Accepted was reset to the full input
	Fallback bool
}

// FilterAll probes urls one at a time with the configured pause between
// probes. Videos are not probed. When more than maxRejectRatio of the input
// is rejected the probe results are distrusted and every URL is accepted;
// a ratio of 0 or above 1 disables the guard.
func (p *PropertyProber) FilterAll(ctx context.Context, urls []string, maxRejectRatio float64) Result {
	var res Result
	for i, u := range urls {
		if ctx.Err() != nil {
			// unprobed leftovers are kept
			res.Accepted = append(res.Accepted, urls[i:]...)
			break
		}
		if extract.KindOf(u) == extract.KindVideo {
			res.Accepted = append(res.Accepted, u)
			continue
		}

		v := p.Classify(ctx, u)
		if v.Keep {
			res.Accepted = append(res.Accepted, u)
		} else {
			res.Rejected = append(res.Rejected, Rejection{URL: u, Verdict: v})
		}

		if i < len(urls)-1 && p.cfg.Delay > 0 {
			if err := retry.Wait(ctx, p.cfg.Delay); err != nil {
				res.Accepted = append(res.Accepted, urls[i+1:]...)
				break
			}
		}
	}

	if len(urls) > 0 && maxRejectRatio > 0 && maxRejectRatio < 1 {
		ratio := float64(len(res.Rejected)) / float64(len(urls))
		if ratio > maxRejectRatio {
			p.logger.WarnWithFields("property filter rejected too much, keeping pattern-filtered set", logger.Fields{
				"rejected": len(res.Rejected),
				"total":    len(urls),
			})
			res.Accepted = append([]string(nil), urls...)
			res.Fallback = true
		}
	}

	p.logger.InfoWithFields("property filter finished", logger.Fields{
		"accepted": len(res.Accepted),
		"rejected": len(res.Rejected),
		"fallback": res.Fallback,
	})
	return res
}
