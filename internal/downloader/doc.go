// Package downloader acquires media files. The Engine transfers one file
// at a time with retries and size validation; WorkerPool fans
// tasks out over a bounded number of goroutines.
//
// Files are streamed to a ".part" sibling and renamed into place only
// after validation, so a destination name never holds a partial file.
package downloader
