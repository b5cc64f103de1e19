package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/normalize"
)

// PageFetcher retrieves the markup of a secondary document
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// VideoPatterns find video sources inside an embed document
var VideoPatterns = []Pattern{
	{"video_tag", regexp.MustCompile(`(?i)<video[^>]+src=["']([^"']+)["']`)},
	{"source_tag", regexp.MustCompile(`(?i)<source[^>]+src=["']([^"']+\.(?:mp4|webm|mov|avi|mkv))["']`)},
	{"quoted", regexp.MustCompile(`(?i)["'](https?://[^"']+\.(?:mp4|webm|mov|avi|mkv))["']`)},
	{"video_var", regexp.MustCompile(`(?i)video_url\s*[:=]\s*["']([^"']+)["']`)},
	{"player_var", regexp.MustCompile(`(?i)(?:source|file)\s*[:=]\s*["']([^"']+\.(?:mp4|webm|mov))["']`)},
	{"json", regexp.MustCompile(`(?i)"(?:url|source|file)"\s*:\s*"([^"]+\.(?:mp4|webm|mov))"`)},
}

var embedNoise = []string{"player.js", "analytics", "/ads", ".js", ".css"}

// Embed follows every iframe to its own document and extracts video
// sources from it. A failing embed is logged and skipped.
type Embed struct {
	Fetcher    PageFetcher
	Normalizer *normalize.Normalizer
	Logger     logger.Logger
}

func (Embed) Source() Source { return SourceEmbed }

func (s Embed) Extract(ctx context.Context, p *Page) []string {
	if s.Fetcher == nil {
		return nil
	}
	norm := s.Normalizer
	if norm == nil {
		norm = normalize.New()
	}
	log := s.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	var frames []string
	p.Doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if u := norm.Normalize(src, p.Base); u != "" {
			frames = append(frames, u)
		}
	})
	frames = norm.All(frames, p.Base)

	var out []string
	for _, frame := range frames {
		if ctx.Err() != nil {
			break
		}
		markup, err := s.Fetcher.FetchHTML(ctx, frame)
		if err != nil {
			log.WithError(err).WarnWithFields("embed fetch failed", logger.Fields{"embed": frame})
			continue
		}
		found := 0
		for _, raw := range matchAll(VideoPatterns, markup) {
			abs := norm.Normalize(raw, frame)
			if abs == "" || isEmbedNoise(abs) {
				continue
			}
			out = append(out, abs)
			found++
		}
		log.DebugWithFields("embed scanned", logger.Fields{"embed": frame, "videos": found})
	}
	return out
}

func isEmbedNoise(u string) bool {
	lower := strings.ToLower(u)
	for _, n := range embedNoise {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
