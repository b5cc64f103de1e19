package filter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternFilterClassify(t *testing.T) {
	f := NewPatternFilter(DefaultPolicy())

	tests := []struct {
		name   string
		url    string
		keep   bool
		reason string
	}{
		{"size token in filename", "https://cdn.example/x/img_300x300.jpg", false, `filename pattern _\d+x\d+\.`},
		{"full image", "https://cdn.example/x/img_full.jpg", true, ""},
		{"size token in path", "https://cdn.test/96x96/pic.jpg", false, "size token 96x96"},
		{"thumb stem", "https://cdn.test/a/holiday_thumb.jpg", false, `filename pattern _thumb(?:nail)?\.`},
		{"thumbs directory", "https://cdn.test/thumbs/holiday.jpg", false, "url contains /thumbs/"},
		{"avatar domain", "https://www.gravatar.com/u/abc.jpg", false, "avatar domain gravatar.com"},
		{"spacer", "https://forum.test/styles/spacer.gif", false, "url contains /spacer."},
		{"gif allowed by default", "https://cdn.test/a/funny.gif", true, ""},
		{"case insensitive", "https://CDN.test/A/IMG_THUMB.JPG", false, `filename pattern _thumb(?:nail)?\.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Classify(tt.url)
			assert.Equal(t, tt.keep, v.Keep)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestPatternFilterExcludedExtensionsAndKeywords(t *testing.T) {
	p := DefaultPolicy()
	p.ExcludeExtensions = []string{"GIF"}
	p.Keywords = GalleryKeywords
	f := NewPatternFilter(p)

	assert.False(t, f.Classify("https://cdn.test/a/funny.gif?x=1").Keep)
	assert.False(t, f.Classify("https://g.test/img/site-logo.png").Keep)
	// keywords never drop videos
	assert.True(t, f.Classify("https://g.test/v/logo-intro.mp4").Keep)
}

func TestPatternFilterIsDeterministicAndSubset(t *testing.T) {
	f := NewPatternFilter(DefaultPolicy())
	input := []string{
		"https://cdn.test/a/1.jpg",
		"https://cdn.test/thumbs/2.jpg",
		"https://cdn.test/a/3_small.jpg",
		"https://cdn.test/a/4.png",
		"https://i.redd.it/abc.jpg",
	}

	kept1, rej1 := f.Partition(input)
	kept2, rej2 := f.Partition(input)
	assert.Equal(t, kept1, kept2)
	assert.Equal(t, rej1, rej2)
	assert.Subset(t, input, kept1)
	assert.Len(t, kept1, 3)
	assert.Equal(t, map[string]int{
		"url contains /thumbs/":     1,
		`filename pattern _small\.`: 1,
	}, ReasonCounts(rej1))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type fakeProber struct {
	meta      *fetch.Meta
	headErr   error
	prefix    []byte
	prefixErr error
	heads     int
	gets      int
	lastHdr   fetch.Headers
}

func (f *fakeProber) Head(_ context.Context, _ string, h fetch.Headers) (*fetch.Meta, error) {
	f.heads++
	f.lastHdr = h
	return f.meta, f.headErr
}

func (f *fakeProber) GetPrefix(_ context.Context, _ string, _ fetch.Headers, _ int64) ([]byte, error) {
	f.gets++
	return f.prefix, f.prefixErr
}

func imageMeta(size int64) *fetch.Meta {
	return &fetch.Meta{Status: http.StatusOK, ContentType: "image/png", ContentLength: size}
}

func TestPropertyProberRules(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		fake   *fakeProber
		keep   bool
		reason string
	}{
		{"html page", "https://cdn.test/a.jpg",
			&fakeProber{meta: &fetch.Meta{Status: 200, ContentType: "text/html; charset=utf-8", ContentLength: -1}},
			false, "not media (content-type text/html; charset=utf-8)"},
		{"below byte floor", "https://cdn.test/a.jpg",
			&fakeProber{meta: imageMeta(1000)},
			false, "file too small (1000 bytes < 5000)"},
		{"large image", "https://cdn.test/a.png",
			&fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 800, 600)},
			true, "ok"},
		{"tiny image", "https://cdn.test/a.png",
			&fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 90, 40)},
			false, "dimensions too small (90x40)"},
		{"small square", "https://cdn.test/a.png",
			&fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 140, 140)},
			false, "small square image (140x140, likely avatar/icon)"},
		{"preset", "https://cdn.test/a.png",
			&fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 192, 192)},
			false, "known thumbnail size (192x192)"},
		{"large square is real content", "https://cdn.test/a.png",
			&fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 1024, 1024)},
			true, "ok"},
		{"trusted cdn ignores declared size", "https://simp6.jpg5.su/img/a.png",
			&fakeProber{meta: imageMeta(100), prefix: pngBytes(t, 800, 600)},
			true, "ok"},
		{"trusted cdn still rejects html", "https://i.imgur.com/a.png",
			&fakeProber{meta: &fetch.Meta{Status: 200, ContentType: "text/html", ContentLength: 100}},
			false, "html page, not media"},
		{"undecodable with good size", "https://cdn.test/a.jpg",
			&fakeProber{meta: imageMeta(50000), prefix: []byte("not an image")},
			true, "could not check dimensions, size ok"},
		{"nothing observable", "https://cdn.test/a.jpg",
			&fakeProber{headErr: errors.New("reset"), prefix: []byte("junk")},
			true, "could not verify, assuming valid"},
		{"prefix fetch fails", "https://cdn.test/a.jpg",
			&fakeProber{meta: imageMeta(50000), prefixErr: errors.New("timeout")},
			true, "check failed, assuming valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPropertyProber(tt.fake, DefaultProbeConfig(), logger.NewTestLogger())
			v := p.Classify(context.Background(), tt.url)
			assert.Equal(t, tt.keep, v.Keep)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestPropertyProberReportsObservations(t *testing.T) {
	fake := &fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 90, 90)}
	cfg := DefaultProbeConfig()
	cfg.HeadersFor = func(string) fetch.Headers { return fetch.Headers{"Referer": "https://forum.test/"} }
	p := NewPropertyProber(fake, cfg, logger.NewTestLogger())

	v := p.Classify(context.Background(), "https://cdn.test/a.png")
	require.NotNil(t, v.Size)
	require.NotNil(t, v.Dims)
	assert.Equal(t, int64(50000), *v.Size)
	assert.Equal(t, Dimensions{90, 90}, *v.Dims)
	assert.Equal(t, "https://forum.test/", fake.lastHdr["Referer"])
}

func TestFilterAllFallsBackOnMassRejection(t *testing.T) {
	fake := &fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 48, 48)}
	cfg := DefaultProbeConfig()
	cfg.Delay = 0
	log := logger.NewTestLogger()
	p := NewPropertyProber(fake, cfg, log)

	urls := []string{"https://cdn.test/1.png", "https://cdn.test/2.png", "https://cdn.test/3.png"}
	res := p.FilterAll(context.Background(), urls, 0.8)
	assert.True(t, res.Fallback)
	assert.Equal(t, urls, res.Accepted)
	assert.Len(t, res.Rejected, 3)
	assert.True(t, log.HasMessage("rejected too much"))

	res = p.FilterAll(context.Background(), urls, 0)
	assert.False(t, res.Fallback)
	assert.Empty(t, res.Accepted)
}

func TestFilterAllSkipsVideos(t *testing.T) {
	fake := &fakeProber{meta: imageMeta(50000), prefix: pngBytes(t, 800, 600)}
	cfg := DefaultProbeConfig()
	cfg.Delay = 0
	p := NewPropertyProber(fake, cfg, logger.NewTestLogger())

	res := p.FilterAll(context.Background(), []string{"https://cdn.test/clip.mp4", "https://cdn.test/1.png"}, 0.8)
	assert.Equal(t, []string{"https://cdn.test/clip.mp4", "https://cdn.test/1.png"}, res.Accepted)
	assert.Equal(t, 1, fake.heads)
}

func TestPropertyProberOverHTTP(t *testing.T) {
	img := pngBytes(t, 640, 480)
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			ranges = append(ranges, r.Header.Get("Range"))
		}
		http.ServeContent(w, r, "photo.png", time.Time{}, bytes.NewReader(img))
	}))
	defer srv.Close()

	client := fetch.NewClient(5*time.Second, fetch.WithLogger(logger.NewTestLogger()))
	cfg := DefaultProbeConfig()
	cfg.MinBytes = 100
	p := NewPropertyProber(client, cfg, logger.NewTestLogger())

	v := p.Classify(context.Background(), srv.URL+"/photo.png")
	assert.True(t, v.Keep)
	require.NotNil(t, v.Dims)
	assert.Equal(t, Dimensions{640, 480}, *v.Dims)
	require.Len(t, ranges, 1)
	assert.True(t, strings.HasPrefix(ranges[0], "bytes=0-"))
}
