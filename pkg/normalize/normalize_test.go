package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const base = "https://forum.test/threads/trip-photos.123/page-2"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absolute", "https://cdn.test/a.jpg", "https://cdn.test/a.jpg"},
		{"entities", "https://cdn.test/a.jpg?x=1&amp;y=2", "https://cdn.test/a.jpg?x=1&y=2"},
		{"double escaped ampersand", "https://cdn.test/a.jpg?x=1&amp;amp;y=2", "https://cdn.test/a.jpg?x=1&y=2"},
		{"escaped key named like an entity", "https://cdn.test/img.jpg?a=1&amp;para=2", "https://cdn.test/img.jpg?a=1&para=2"},
		{"escaped copy key", "https://cdn.test/img.jpg?a=1&amp;copy=2", "https://cdn.test/img.jpg?a=1&copy=2"},
		{"raw legacy entity name", "https://cdn.test/img.jpg?id=1&notify=2", "https://cdn.test/img.jpg?id=1&notify=2"},
		{"raw param key", "https://cdn.test/img.jpg?x=1&param=y", "https://cdn.test/img.jpg?x=1&param=y"},
		{"numeric slash entity", "https:&#x2F;&#x2F;cdn.test&#47;a.jpg", "https://cdn.test/a.jpg"},
		{"quot removed", "&quot;https://cdn.test/a.jpg&quot;", "https://cdn.test/a.jpg"},
		{"escaped slashes", `https:\/\/cdn.test\/media\/a.png`, "https://cdn.test/media/a.png"},
		{"whitespace truncation", "https://cdn.test/a.jpg 2x", "https://cdn.test/a.jpg"},
		{"protocol relative", "//cdn.test/a.jpg", "https://cdn.test/a.jpg"},
		{"root relative", "/data/a.jpg", "https://forum.test/data/a.jpg"},
		{"path relative", "att/a.jpg", "https://forum.test/threads/trip-photos.123/att/a.jpg"},
		{"fragment", "https://cdn.test/a.jpg#view", "https://cdn.test/a.jpg"},
		{"ibb completion", "https://ibb.co/AbCd12", "https://ibb.co/AbCd12.jpg"},
		{"ibb subdomain completion", "https://i.ibb.co/x/y/", "https://i.ibb.co/x/y.jpg"},
		{"ibb with ext", "https://i.ibb.co/x/y.png", "https://i.ibb.co/x/y.png"},
		{"data uri", "data:image/png;base64,AAAA", ""},
		{"javascript", "javascript:void(0)", ""},
		{"empty", "   ", ""},
	}

	n := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.raw, base))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://cdn.test/a.jpg?x=1&amp;amp;amp;y=2#frag",
		`\/\/cdn.test\/x.jpg`,
		"../up/../a b.jpg",
		"https://ibb.co/q",
		"/p?page=3&amp;sort=new",
		"https://cdn.test/%E2%9C%93.jpg",
		"https://cdn.test/img.jpg?a=1&amp;amp;para=2",
		"https://cdn.test/img.jpg?id=1&notify=2&amp;quot;",
		"https://cdn.test/a%20b.jpg",
	}

	n := New()
	for _, in := range inputs {
		once := n.Normalize(in, base)
		assert.Equal(t, once, n.Normalize(once, base), "input %q", in)
	}
}

func TestAllDeduplicatesInOrder(t *testing.T) {
	got := New().All([]string{
		"//cdn.test/b.jpg",
		"https://cdn.test/a.jpg",
		"https://cdn.test/b.jpg#x",
		"data:image/gif;base64,R0",
		"https://cdn.test/a.jpg",
	}, base)

	assert.Equal(t, []string{"https://cdn.test/b.jpg", "https://cdn.test/a.jpg"}, got)
}
