package rate

import (
	"net/http"
	"strconv"
	"time"
)

// Observer records how a provider answers. It never blocks or delays a
// request; throttling responses are only counted.
type Observer struct {
	provider string
	now      func() time.Time
}

func NewObserver(provider string) *Observer {
	return &Observer{provider: provider, now: time.Now}
}

func (o *Observer) Provider() string {
	return o.provider
}

// WrapHTTP returns a copy of base whose responses are reported to an
// observer for provider.
func WrapHTTP(provider string, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, observer: NewObserver(provider)}
	return &client
}

type roundTripper struct {
	base     http.RoundTripper
	observer *Observer
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	rt.observer.Observe(resp.StatusCode, resp.Header)
	return resp, nil
}

// Observe records a response status. For 429 and 503 it also records the
// pause the provider asked for, if any.
func (o *Observer) Observe(status int, header http.Header) {
	lastStatusGauge.WithLabelValues(o.provider).Set(float64(status))
	responsesCounter.WithLabelValues(o.provider, strconv.Itoa(status)).Inc()

	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	throttledCounter.WithLabelValues(o.provider).Inc()
	if pause, ok := o.retryAfter(header.Get("Retry-After")); ok {
		retryAfterGauge.WithLabelValues(o.provider).Set(pause.Seconds())
	}
}

// retryAfter parses both the delay-seconds and HTTP-date forms.
func (o *Observer) retryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	pause := at.Sub(o.now())
	if pause < 0 {
		pause = 0
	}
	return pause, true
}
