package internal

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func stubResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("body")),
	}
}

func TestErrorProxyTransport(t *testing.T) {
	rt := errorProxyTransport{rtFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(http.StatusBadGateway), nil
	})}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, statusErr(http.StatusBadGateway))

	ok := errorProxyTransport{rtFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK), nil
	})}
	resp, err := ok.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorProxyTransportRateLimited(t *testing.T) {
	rt := errorProxyTransport{rtFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(http.StatusTooManyRequests), nil
	})}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	var limited ErrRateLimited
	assert.ErrorAs(t, err, &limited)
	assert.Equal(t, "rate_limited", errorLabel(err))
}

// A 429 surfacing through the full error-proxied client must keep its
// rate-limited classification all the way out of the fetcher.
func TestFetchRateLimitedThroughTransport(t *testing.T) {
	client := &http.Client{
		Transport: errorProxyTransport{rtFunc(func(r *http.Request) (*http.Response, error) {
			return stubResponse(http.StatusTooManyRequests), nil
		})},
	}

	f := NewFetcher(client, nil)
	f.baseDelay = 0
	f.politeMin = 0
	f.politeMax = 0
	f.jitter = func() time.Duration { return 0 }

	_, err := f.Fetch(context.Background(), "https://example.com/shelf")
	require.Error(t, err)

	var limited ErrRateLimited
	assert.ErrorAs(t, err, &limited)
	assert.Equal(t, "rate_limited", errorLabel(err))
}

func TestHeaderTransport(t *testing.T) {
	var gotUA string
	rt := &HeaderTransport{
		Key:   "User-Agent",
		Value: _userAgent,
		RoundTripper: rtFunc(func(r *http.Request) (*http.Response, error) {
			gotUA = r.Header.Get("User-Agent")
			return stubResponse(http.StatusOK), nil
		}),
	}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, _userAgent, gotUA)
}

func TestScopedTransport(t *testing.T) {
	var gotHost string
	rt := ScopedTransport{
		Host: "www.example.com",
		RoundTripper: rtFunc(func(r *http.Request) (*http.Response, error) {
			gotHost = r.URL.Host
			return stubResponse(http.StatusOK), nil
		}),
	}

	req, err := http.NewRequest(http.MethodGet, "https://elsewhere.test/path", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "www.example.com", gotHost)
}
