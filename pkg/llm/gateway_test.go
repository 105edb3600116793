package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, messages []Message, opts *Options) (string, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var resp string
	if i < len(c.responses) {
		resp = c.responses[i]
	}
	return resp, err
}

func testGateway(client Client, maxRetries int) (*Gateway, *[]time.Duration) {
	var sleeps []time.Duration
	g := NewGateway(client, maxRetries)
	g.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return g, &sleeps
}

func TestCall_Success(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"ok": true}`}}
	g, sleeps := testGateway(client, 2)

	out, err := g.Call(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Empty(t, *sleeps)
}

func TestCall_SanitizesFencedResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{"```json\n{\"a\": 1}\n```"}}
	g, _ := testGateway(client, 0)

	out, err := g.Call(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestCall_RetriesTransientErrors(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []string{"", `{"ok": true}`},
	}
	g, sleeps := testGateway(client, 2)

	out, err := g.Call(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, []time.Duration{retryDelay}, *sleeps)
}

func TestCall_ExhaustsTransientRetries(t *testing.T) {
	boom := errors.New("boom")
	client := &scriptedClient{errs: []error{boom, boom, boom}}
	g, _ := testGateway(client, 2)

	_, err := g.Call(context.Background(), "sys", "user", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, client.calls)
}

func TestCall_RateLimitBackoffSchedule(t *testing.T) {
	limited := &APIError{Status: 429, Message: "rate limit exceeded"}
	client := &scriptedClient{
		errs:      []error{limited, limited, limited, nil},
		responses: []string{"", "", "", `{"ok": true}`},
	}
	g, sleeps := testGateway(client, 0)

	out, err := g.Call(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *sleeps)
}

func TestCall_RateLimitFatalAfterFullSchedule(t *testing.T) {
	limited := &APIError{Status: 429, Message: "Too Many Requests"}
	errs := make([]error, 6)
	for i := range errs {
		errs[i] = limited
	}
	client := &scriptedClient{errs: errs}
	g, sleeps := testGateway(client, 2)

	_, err := g.Call(context.Background(), "sys", "user", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second,
	}, *sleeps)
	assert.Equal(t, 6, client.calls)
}

func TestCall_RateLimitCounterResetsOnOtherError(t *testing.T) {
	limited := &APIError{Status: 429, Message: "throttled"}
	client := &scriptedClient{
		errs:      []error{limited, errors.New("timeout"), limited, nil},
		responses: []string{"", "", "", "ok"},
	}
	g, sleeps := testGateway(client, 2)

	out, err := g.Call(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	// Both rate-limit backoffs start at the bottom of the schedule.
	assert.Equal(t, []time.Duration{2 * time.Second, retryDelay, 2 * time.Second}, *sleeps)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(&APIError{Status: 429}))
	assert.True(t, IsRateLimit(errors.New("Rate limit reached for gpt-4o-mini")))
	assert.True(t, IsRateLimit(errors.New("insufficient quota")))
	assert.True(t, IsRateLimit(errors.New("request throttled")))
	assert.False(t, IsRateLimit(errors.New("connection refused")))
	assert.False(t, IsRateLimit(nil))
}

func TestBackoffDelayCap(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 32*time.Second, backoffDelay(5))
	assert.Equal(t, maxBackoff, backoffDelay(20))
}

func TestSanitizeJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":         {`{"a": 1}`, `{"a": 1}`},
		"fenced":        {"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		"fenced no tag": {"```\n{\"a\": 1}\n```", `{"a": 1}`},
		"bad apostrophe": {
			`{"name": "St. Mary\'s College"}`,
			`{"name": "St. Mary's College"}`,
		},
		"whitespace": {"\n  {\"a\": 1}  \n", `{"a": 1}`},
		// Already valid: an escaped backslash before a closing quote must
		// survive untouched.
		"trailing escaped backslash": {
			`{"path": "C:\\Users\\"}`,
			`{"path": "C:\\Users\\"}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeJSON(tc.in))
		})
	}
}
