package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.False(t, ShouldRetry(context.Canceled))

	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}}))

	assert.True(t, ShouldRetry(&tele.Error{Code: 502}))
	assert.False(t, ShouldRetry(&tele.Error{Code: 400}))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, RetryDelay(errors.New("boom"), time.Second))
	assert.Equal(t, time.Second, RetryDelay(nil, time.Second))
}
