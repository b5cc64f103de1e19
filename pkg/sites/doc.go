// Package sites holds one handler per supported platform and the per-run
// state they share.
//
// A handler receives the target URL and a *Run carrying the configured
// client, engine, optional browser, failure ledger and counters. It
// discovers the entity's pages, extracts and filters candidates, names the
// destinations and hands the resulting jobs to Run.Acquire.
//
//	reg := sites.DefaultRegistry()
//	h, err := reg.Resolve(target)
//	if err != nil {
//	    return err
//	}
//	err = h.Run(ctx, target, run)
package sites
