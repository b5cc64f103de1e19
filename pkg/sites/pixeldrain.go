package sites

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"mediagrab/internal/downloader"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/storage"
)

// PixeldrainAPI is the public API root
const PixeldrainAPI = "https://pixeldrain.com/api"

// PixeldrainFile is one entry of the file API
type PixeldrainFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// PixeldrainList is the list API response
type PixeldrainList struct {
	Success   bool             `json:"success"`
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	FileCount int              `json:"file_count"`
	Files     []PixeldrainFile `json:"files"`
}

// Pixeldrain downloads lists (/l/<id>) and single files (/u/<id>) through
// the JSON API. The API key, when configured, is attached by the client.
type Pixeldrain struct {
	// APIBase overrides PixeldrainAPI
	APIBase string
}

func (*Pixeldrain) Name() Mode { return ModePixeldrain }

func (*Pixeldrain) Match(u *url.URL) bool { return Detect(u) == ModePixeldrain }

func (p *Pixeldrain) api() string {
	if p.APIBase != "" {
		return strings.TrimSuffix(p.APIBase, "/")
	}
	return PixeldrainAPI
}

// pixeldrainID extracts the id following marker in path
func pixeldrainID(path, marker string) string {
	i := strings.Index(path, marker)
	if i < 0 {
		return ""
	}
	id := path[i+len(marker):]
	if j := strings.IndexByte(id, '/'); j >= 0 {
		id = id[:j]
	}
	return id
}

func (p *Pixeldrain) Run(ctx context.Context, target *url.URL, r *Run) error {
	switch {
	case strings.Contains(target.Path, "/l/"):
		return p.runList(ctx, pixeldrainID(target.Path, "/l/"), r)
	case strings.Contains(target.Path, "/u/"):
		return p.runFile(ctx, pixeldrainID(target.Path, "/u/"), r)
	case strings.Contains(target.Path, "/api/file/"):
		return p.runFile(ctx, pixeldrainID(target.Path, "/api/file/"), r)
	}
	return errs.New(errs.ErrorTypePermanent, target.String(), "unsupported pixeldrain URL; expected /l/<id> or /u/<id>")
}

func (p *Pixeldrain) engine(r *Run) *downloader.Engine {
	// file hosts serve arbitrary sizes; only an empty body is invalid
	return r.Engine.Derive(func(c *downloader.Config) {
		c.ImageFloor = 0
		c.VideoFloor = 0
	})
}

func (p *Pixeldrain) job(dir string, f PixeldrainFile) downloader.Job {
	name := storage.SanitizeFilename(f.Name)
	if name == "" {
		name = f.ID + ".bin"
	}
	u := fmt.Sprintf("%s/file/%s", p.api(), url.PathEscape(f.ID))
	return downloader.Job{Task: downloader.Task{
		URL:  u,
		Dest: filepath.Join(dir, name),
		Kind: extract.KindOf(name),
	}}
}

func (p *Pixeldrain) runList(ctx context.Context, id string, r *Run) error {
	if id == "" {
		return errs.New(errs.ErrorTypePermanent, "", "missing pixeldrain list id")
	}
	var list PixeldrainList
	listURL := fmt.Sprintf("%s/list/%s", p.api(), url.PathEscape(id))
	if err := r.Client.GetJSON(ctx, listURL, nil, &list); err != nil {
		return fmt.Errorf("failed to get list info: %w", err)
	}
	title := list.Title
	if title == "" {
		title = id
	}
	r.Stats.Found.Add(int64(len(list.Files)))
	r.Logger.InfoWithFields("pixeldrain list", logger.Fields{
		"id":    id,
		"title": title,
		"files": len(list.Files),
	})
	if len(list.Files) == 0 {
		return errs.New(errs.ErrorTypeExtractionEmpty, listURL, "list has no files")
	}

	dir, err := r.OutputDir(title, false)
	if err != nil {
		return err
	}
	jobs := make([]downloader.Job, 0, len(list.Files))
	for _, f := range list.Files {
		if f.ID == "" {
			continue
		}
		jobs = append(jobs, p.job(dir, f))
	}
	r.Acquire(ctx, p.engine(r), jobs)
	return nil
}

func (p *Pixeldrain) runFile(ctx context.Context, id string, r *Run) error {
	if id == "" {
		return errs.New(errs.ErrorTypePermanent, "", "missing pixeldrain file id")
	}
	info := PixeldrainFile{ID: id}
	infoURL := fmt.Sprintf("%s/file/%s/info", p.api(), url.PathEscape(id))
	if err := r.Client.GetJSON(ctx, infoURL, nil, &info); err != nil {
		r.Logger.WarnWithFields("file info unavailable, using id as name", logger.Fields{
			"id":    id,
			"error": err.Error(),
		})
	}
	if info.ID == "" {
		info.ID = id
	}
	r.Stats.Found.Add(1)

	dir, err := r.OutputDir("", false)
	if err != nil {
		return err
	}
	r.Acquire(ctx, p.engine(r), []downloader.Job{p.job(dir, info)})
	return nil
}
