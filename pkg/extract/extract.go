// Package extract discovers candidate media URLs in HTML documents.
//
// Extraction runs an ordered list of Strategy values over one parsed page.
// Every strategy contributes independently and results are unioned; the
// order only decides which provenance a URL keeps when several strategies
// find it.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/normalize"
)

// MinURLLength rejects degenerate matches
const MinURLLength = 16

// Extractor runs strategies over pages
type Extractor struct {
	strategies []Strategy
	normalizer *normalize.Normalizer
	logger     logger.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithNormalizer replaces the default normalizer
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Extractor) { e.normalizer = n }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor over the given strategies
func New(strategies []Strategy, opts ...Option) *Extractor {
	e := &Extractor{
		strategies: strategies,
		normalizer: normalize.New(),
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForumStrategies is the strategy list for forum threads
func ForumStrategies() []Strategy {
	return []Strategy{
		LazyAttr{},
		InlineURL{Patterns: ForumHostPatterns},
		AnchorLink{},
		MediaSrc{},
	}
}

// GalleryStrategies is the strategy list for gallery and video pages.
// fetcher may be nil, which disables embed following.
func GalleryStrategies(fetcher PageFetcher) []Strategy {
	patterns := append(append([]Pattern{}, ForumHostPatterns...), GalleryPatterns...)
	return []Strategy{
		LazyAttr{},
		InlineURL{Patterns: patterns},
		AnchorLink{},
		MediaSrc{},
		Embed{Fetcher: fetcher},
	}
}

// GenericStrategies is the broad strategy list for unknown sites
func GenericStrategies(fetcher PageFetcher) []Strategy {
	return []Strategy{
		LazyAttr{},
		InlineURL{Patterns: BarePatterns},
		AnchorLink{},
		MediaSrc{},
		Embed{Fetcher: fetcher},
		OpenGraph{},
	}
}

// Extract parses markup and returns its candidates, deduplicated on the
// normalised URL
func (e *Extractor) Extract(ctx context.Context, markup, baseURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return e.ExtractDocument(ctx, &Page{Doc: doc, Raw: markup, Base: baseURL}), nil
}

// ExtractDocument runs the strategies over an already parsed page
func (e *Extractor) ExtractDocument(ctx context.Context, p *Page) []Candidate {
	set := NewSet()
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		if emb, ok := s.(Embed); ok {
			if emb.Normalizer == nil {
				emb.Normalizer = e.normalizer
			}
			if emb.Logger == nil {
				emb.Logger = e.logger
			}
			s = emb
		}

		kept := 0
		for _, raw := range s.Extract(ctx, p) {
			raw = strings.TrimSpace(raw)
			if len(raw) < MinURLLength || strings.HasPrefix(strings.ToLower(raw), "data:") {
				continue
			}
			u := e.normalizer.Normalize(raw, p.Base)
			if u == "" {
				continue
			}
			set.Add(Candidate{URL: u, Source: s.Source(), Kind: KindOf(u)})
			kept++
		}
		e.logger.DebugWithFields("strategy finished", logger.Fields{
			"strategy": s.Source().String(),
			"matches":  kept,
		})
	}
	return set.List()
}
