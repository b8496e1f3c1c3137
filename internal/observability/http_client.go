package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

const componentHTTPClient = "http_client"

// Hosts that receive sentry-trace and baggage headers: the email provider and
// the card processor.
var tracePropagationTargets = []string{
	"api.resend.com",
	"api.stripe.com",
}

// meteringTransport counts outbound calls per host and status class so
// provider outages show up next to the order metrics that depend on them.
type meteringTransport struct {
	base http.RoundTripper
}

func (t meteringTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)

	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	meter := ComponentMeter(req.Context(), componentHTTPClient)
	attrs := sentry.WithAttributes(
		attribute.String("host", req.URL.Host),
		attribute.String("outcome", outcome),
	)
	meter.Count("http.client.request", 1, attrs)
	meter.Distribution("http.client.duration", float64(time.Since(started).Milliseconds()), sentry.WithUnit("millisecond"), attrs)
	return resp, err
}

func WrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return sentryhttpclient.NewSentryRoundTripper(
		meteringTransport{base: base},
		sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
	)
}

// NewHTTPClient returns a traced, metered client for provider APIs. A zero
// timeout leaves the client unbounded; callers pass the provider budget.
func NewHTTPClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}
