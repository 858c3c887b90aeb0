package internal

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// _userAgent is sent with every upstream request. The source serves the
// legacy shelf markup to browser-looking agents.
var _userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.88 Safari/537.36"

// throttledTransport rate limits requests.
type throttledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	// Back off for a minute if we got a 403.
	if resp.StatusCode == http.StatusForbidden {
		Log(r.Context()).Warn("backing off after 403", "limit", t.Limiter.Limit(), "tokens", t.Limiter.Tokens())
		orig := t.Limiter.Limit()
		t.Limiter.SetLimit(rate.Every(time.Hour / 60))          // 1RPM
		t.Limiter.SetLimitAt(time.Now().Add(time.Minute), orig) // Restore
	}

	return resp, nil
}

// ScopedTransport restricts requests to a particular host.
type ScopedTransport struct {
	Host string
	http.RoundTripper
}

// RoundTrip forces the request to stick to the given host, so redirects
// can't send us elsewhere.
func (t ScopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// HeaderTransport adds a header to all requests. Best used with a
// ScopedTransport.
type HeaderTransport struct {
	Key   string
	Value string
	http.RoundTripper
}

// RoundTrip always sets the header on the request.
func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Set(t.Key, t.Value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport returns a non-nil error for all response codes 400
// and above so retries can key off the status. A 429 becomes
// ErrRateLimited so it keeps its own metric label.
type errorProxyTransport struct {
	http.RoundTripper
}

// RoundTrip wraps upstream 4XX and 5XX responses in errors.
func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, ErrRateLimited{Err: statusErr(resp.StatusCode)}
		}
		return nil, statusErr(resp.StatusCode)
	}
	return resp, nil
}

// NewUpstream creates an http.Client with middleware appropriate for
// polite scraping of the source: throttled, scoped to one host, and
// identifying itself with a stable user agent.
func NewUpstream(host string) *http.Client {
	return &http.Client{
		Transport: throttledTransport{
			Limiter: rate.NewLimiter(rate.Every(time.Second/2), 1),
			RoundTripper: &HeaderTransport{
				Key:   "User-Agent",
				Value: _userAgent,
				RoundTripper: ScopedTransport{
					Host:         host,
					RoundTripper: errorProxyTransport{http.DefaultTransport},
				},
			},
		},
	}
}
