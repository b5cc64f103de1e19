package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{0, ErrorTypeTransient},
		{429, ErrorTypeTransient},
		{500, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{400, ErrorTypePermanent},
		{418, ErrorTypePermanent},
		{200, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.code))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(502))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(400))
}

func TestTypeOfWrapped(t *testing.T) {
	base := New(ErrorTypeContentMismatch, "https://x.test/a.jpg", "got text/html")
	wrapped := fmt.Errorf("acquire: %w", base)

	assert.Equal(t, ErrorTypeContentMismatch, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeContentMismatch))
	assert.False(t, Is(nil, ErrorTypeContentMismatch))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := FromStatus(503, "https://x.test")
	assert.Equal(t, "transient error (code 503): Service Unavailable", err.Error())

	inner := fmt.Errorf("reset")
	w := Wrap(ErrorTypeTransient, "u", inner, "stream")
	assert.Equal(t, "transient error: stream: reset", w.Error())
	assert.ErrorIs(t, w, inner)
}
