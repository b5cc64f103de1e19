// Package storage lays out run directories and names files inside them.
//
// Every run writes to <base>/<slug>_<YYYYMMDD_HHMMSS>, where the slug comes
// from the entity URL:
//
//	dir, err := storage.NewRunDir(cfg.Output.BaseDirectory, storage.Slug(target, "thread"), time.Now())
//	name := storage.PrefixedName("trip_", 7, 4, mediaURL, false) // trip_0007.jpg
//
// Manager.WriteFile replaces files atomically through a synced temporary
// file, so a reader never sees a half-written report.
package storage
