// Package transport posts JSON bodies to HTTP endpoints.
//
// Failures are reported as *Error values whose text matches what the host
// boundary returns to callers ("ERROR: Failed to connect", "ERROR: HTTP 500 -
// body", ...).
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
)

// Defaults for HTTPTransport.
const (
	DefaultUserAgent = "GStatistics/1.0"
	DefaultTimeout   = 30 * time.Second
)

// Transport delivers one POST.
type Transport interface {
	// Post sends body and returns the response status code. A status other
	// than 200 is returned together with a KindStatus error.
	Post(ctx context.Context, url, body string) (int, error)

	// PostWithResponse sends body and returns the response body, which is
	// only considered a success on status 200.
	PostWithResponse(ctx context.Context, url, body string) (string, error)
}

// Kind identifies the stage at which a POST failed.
type Kind string

// Failure kinds.
const (
	KindParse   Kind = "parse"
	KindConnect Kind = "connect"
	KindSend    Kind = "send"
	KindReceive Kind = "receive"
	KindStatus  Kind = "status"
)

// Error is a failed POST.
type Error struct {
	Kind Kind
	URL  string
	// Code and Body are set for KindStatus.
	Code int
	Body string
	Err  error
}

// Error renders the host-facing error text.
func (e *Error) Error() string {
	switch e.Kind {
	case KindParse:
		return "ERROR: Failed to parse URL"
	case KindConnect:
		return "ERROR: Failed to connect"
	case KindSend:
		return "ERROR: Failed to send request"
	case KindReceive:
		return "ERROR: Failed to receive response"
	case KindStatus:
		return fmt.Sprintf("ERROR: HTTP %d - %s", e.Code, e.Body)
	default:
		return "ERROR: " + string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for KindStatus errors and 0 otherwise.
func (e *Error) StatusCode() int {
	if e.Kind != KindStatus {
		return 0
	}
	return e.Code
}

// IsKind reports whether err is a transport error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		t.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithSpanManager sets the span manager used around each POST.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(t *HTTPTransport) {
		if sm != nil {
			t.spans = sm
		}
	}
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	spans     observability.SpanManager
}

// Compile-time interface check.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport with the given options.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:    &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		spans:     observability.NewSpanManager(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Post implements Transport.
func (t *HTTPTransport) Post(ctx context.Context, rawURL, body string) (int, error) {
	ctx, span := t.spans.StartPostSpan(ctx, rawURL, false)

	code, _, err := t.do(ctx, rawURL, body, false)
	if code > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", code))
	}
	t.spans.EndSpanWithError(span, err)
	return code, err
}

// PostWithResponse implements Transport.
func (t *HTTPTransport) PostWithResponse(ctx context.Context, rawURL, body string) (string, error) {
	ctx, span := t.spans.StartPostSpan(ctx, rawURL, true)

	code, respBody, err := t.do(ctx, rawURL, body, true)
	if code > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", code))
	}
	t.spans.EndSpanWithError(span, err)
	if err != nil {
		return "", err
	}
	return respBody, nil
}

func (t *HTTPTransport) do(ctx context.Context, rawURL, body string, readBody bool) (int, string, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return 0, "", &Error{Kind: KindParse, URL: rawURL, Err: err}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBufferString(body))
	if err != nil {
		return 0, "", &Error{Kind: KindParse, URL: rawURL, Err: errors.New(err.Error())}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, "", &Error{Kind: classifyDoError(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	var respBody string
	if readBody || resp.StatusCode != http.StatusOK {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, "", &Error{Kind: KindReceive, URL: rawURL, Err: err}
		}
		respBody = string(b)
	} else {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, "", &Error{
			Kind: KindStatus,
			URL:  rawURL,
			Code: resp.StatusCode,
			Body: respBody,
		}
	}
	return resp.StatusCode, respBody, nil
}

// parseURL accepts absolute http and https URLs with a host.
func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		// *url.Error satisfies net.Error; parse failures must not look transient.
		return nil, errors.New(err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// classifyDoError separates failures to reach the server from failures
// after the connection was made.
func classifyDoError(err error) Kind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnect
	}
	return KindSend
}
