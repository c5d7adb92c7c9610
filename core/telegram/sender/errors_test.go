package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_9/sendMessage": timeout`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`, sanitizeErrorMessage(err))
	assert.Empty(t, sanitizeErrorMessage(nil))
}

func TestClassifyError(t *testing.T) {
	dial := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "timeout"},
		{&tele.Error{Code: 500}, "http_5xx"},
		{fmt.Errorf("send: %w", &tele.Error{Code: 403}), "http_4xx"},
		{errors.New("telegram: Bad Request: chat not found (400)"), "http_4xx"},
		{&net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{dial, "dial"},
		{&net.OpError{Op: "read", Err: errors.New("reset")}, "net"},
		{errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyError(tc.err), "%v", tc.err)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	assert.Equal(t, 0, httpStatusFromError(nil))
	assert.Equal(t, 429, httpStatusFromError(tele.FloodError{RetryAfter: 5}))
	assert.Equal(t, 502, httpStatusFromError(&tele.Error{Code: 502}))
	assert.Equal(t, 0, httpStatusFromError(errors.New("no code here")))
}
