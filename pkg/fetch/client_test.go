package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper intercepts requests before they reach the network
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newResponse(req *http.Request, statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode:    statusCode,
		Body:          io.NopCloser(bytes.NewBufferString(body)),
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

type countingPacer struct {
	waits, penalties, relaxes int
}

func (p *countingPacer) Wait(ctx context.Context, _ string) error { p.waits++; return ctx.Err() }
func (p *countingPacer) Penalize(string) time.Duration          { p.penalties++; return time.Second }
func (p *countingPacer) Relax(string)                           { p.relaxes++ }

func TestDefaultHeadersAndOverrides(t *testing.T) {
	var got http.Header
	c := NewClient(5*time.Second,
		WithLogger(logger.NewTestLogger()),
		WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			got = req.Header.Clone()
			return newResponse(req, http.StatusOK, "<html></html>"), nil
		}}),
	)

	_, err := c.GetHTML(context.Background(), "https://forum.test/threads/a.1/", Headers{"Referer": "https://forum.test/"})
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.5", got.Get("Accept-Language"))
	assert.Equal(t, "1", got.Get("DNT"))
	assert.Equal(t, "https://forum.test/", got.Get("Referer"))
	assert.Empty(t, got.Get("Accept-Encoding"))
	assert.Empty(t, got.Get("Authorization"))
}

func TestAPIKeyIsSentOnlyToMatchingHosts(t *testing.T) {
	auth := map[string]string{}
	c := NewClient(5*time.Second,
		WithLogger(logger.NewTestLogger()),
		WithAPIKey("pixeldrain.com", "secret"),
		WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			auth[req.URL.Host] = req.Header.Get("Authorization")
			return newResponse(req, http.StatusOK, "{}"), nil
		}}),
	)

	var v map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), "https://pixeldrain.com/api/list/abc", nil, &v))
	require.NoError(t, c.GetJSON(context.Background(), "https://other.test/api", nil, &v))

	assert.Equal(t, "Basic c2VjcmV0Og==", auth["pixeldrain.com"])
	assert.Empty(t, auth["other.test"])
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected errs.ErrorType
	}{
		{http.StatusTooManyRequests, errs.ErrorTypeTransient},
		{http.StatusServiceUnavailable, errs.ErrorTypeTransient},
		{http.StatusForbidden, errs.ErrorTypeAuth},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusBadRequest, errs.ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := NewClient(5*time.Second,
				WithLogger(logger.NewTestLogger()),
				WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
					return newResponse(req, tt.status, "nope"), nil
				}}),
			)
			_, err := c.Open(context.Background(), "https://cdn.test/a.jpg", nil)
			require.Error(t, err)
			assert.Equal(t, tt.expected, errs.TypeOf(err))
		})
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	c := NewClient(5*time.Second,
		WithLogger(logger.NewTestLogger()),
		WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		}}),
	)
	_, err := c.Head(context.Background(), "https://cdn.test/a.jpg", nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransient))
}

func TestPacerIsConsulted(t *testing.T) {
	pacer := &countingPacer{}
	statuses := []int{http.StatusTooManyRequests, http.StatusOK}
	c := NewClient(5*time.Second,
		WithLogger(logger.NewTestLogger()),
		WithPacer(pacer),
		WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			s := statuses[0]
			statuses = statuses[1:]
			return newResponse(req, s, ""), nil
		}}),
	)

	_, err := c.Head(context.Background(), "https://cdn.test/a.jpg", nil)
	require.NoError(t, err)
	_, err = c.Head(context.Background(), "https://cdn.test/a.jpg", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, pacer.waits)
	assert.Equal(t, 1, pacer.penalties)
	assert.Equal(t, 1, pacer.relaxes)
}

func TestGetPrefixSendsRangeAndLimitsBody(t *testing.T) {
	var rng string
	c := NewClient(5*time.Second,
		WithLogger(logger.NewTestLogger()),
		WithTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			rng = req.Header.Get("Range")
			return newResponse(req, http.StatusOK, strings.Repeat("x", 100)), nil
		}}),
	)

	data, err := c.GetPrefix(context.Background(), "https://cdn.test/a.jpg", nil, 32)
	require.NoError(t, err)
	assert.Equal(t, "bytes=0-31", rng)
	assert.Len(t, data, 32)
}

func TestHeadReportsMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "Image/JPEG")
		w.Header().Set("Content-Length", "12345")
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, WithLogger(logger.NewTestLogger()))
	meta, err := c.Head(context.Background(), srv.URL+"/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, meta.Status)
	assert.Equal(t, "image/jpeg", meta.ContentType)
	assert.Equal(t, int64(12345), meta.ContentLength)
}

func writeCookieFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCookieFileIsSentWithRequests(t *testing.T) {
	var cookieHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieHeader = r.Header.Get("Cookie")
		_, _ = w.Write([]byte("<html>thread</html>"))
	}))
	defer srv.Close()

	path := writeCookieFile(t,
		"127.0.0.1\tFALSE\t/\tFALSE\t1\txf_session\tabc123",
		"#HttpOnly_127.0.0.1\tFALSE\t/\tFALSE\t0\txf_user\t42%2Cxyz",
	)

	c := NewClient(5*time.Second, WithLogger(logger.NewTestLogger()))
	report, err := c.LoadCookieFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Expired)
	assert.True(t, report.HasSession())
	assert.Equal(t, []string{"xf_session", "xf_user"}, report.Session)

	_, err = c.GetHTML(context.Background(), srv.URL+"/threads/x.1/", nil)
	require.NoError(t, err)
	// the expired export still authenticates
	assert.Contains(t, cookieHeader, "xf_session=abc123")
	assert.Contains(t, cookieHeader, "xf_user=42%2Cxyz")
}

func TestParseCookieFileRejectsMalformedLines(t *testing.T) {
	path := writeCookieFile(t, "forum.test\tTRUE\t/")
	_, err := ParseCookieFile(path)
	assert.Error(t, err)
}

func TestIsLoginWall(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 500)

	assert.True(t, IsLoginWall(http.StatusForbidden, "<html>thread</html>"))
	assert.True(t, IsLoginWall(http.StatusOK, "<p>You must be logged in to view this.</p>"))
	assert.False(t, IsLoginWall(http.StatusOK, "<html>just a thread</html>"))
	assert.False(t, IsLoginWall(http.StatusOK, `<div class="message-body">`+long+`Please login for more</div>`))
	assert.True(t, IsLoginWall(http.StatusOK, `<div class="message-body">short. Please login</div>`))

	err := CheckLoginWall(&Page{URL: "https://forum.test/t/1", Status: http.StatusUnauthorized})
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.NoError(t, CheckLoginWall(&Page{Status: http.StatusOK, Body: "fine"}))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://host.test", Origin("https://host.test/a/b?c=1"))
	assert.Equal(t, "", Origin("not a url"))
}
