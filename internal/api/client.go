// Package api talks to a tiqr identity provider over HTTPS.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
	tracerName     = "tiqr/internal/api"
)

// Client calls the metadata, enrollment and authentication endpoints.
type Client struct {
	http            *http.Client
	logger          *slog.Logger
	tracer          trace.Tracer
	protocolVersion int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithProtocolVersion sets the version announced in ProtocolHeader.
func WithProtocolVersion(v int) Option {
	return func(cl *Client) {
		cl.protocolVersion = v
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		http:            &http.Client{Timeout: defaultTimeout},
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
		protocolVersion: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestMetadata fetches the enrollment metadata document.
func (c *Client) RequestMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	const op = "metadata"
	ctx, span := c.tracer.Start(ctx, "api.RequestMetadata", trace.WithAttributes(attribute.String("tiqr.url.host", hostOf(metadataURL))))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, c.fail(span, newError(ErrorInternal, op, metadataURL, err))
	}
	req.Header.Set("Accept", "application/json")

	body, _, err := c.do(req, op)
	if err != nil {
		return nil, c.fail(span, err)
	}

	var m Metadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, c.fail(span, newError(ErrorDecode, op, metadataURL, err))
	}
	if missing := m.Missing(); len(missing) > 0 {
		return nil, c.fail(span, newError(ErrorDecode, op, metadataURL, fmt.Errorf("missing fields %s", strings.Join(missing, ", "))))
	}
	return &m, nil
}

// Enroll posts a new secret to the enrollment URL.
func (c *Client) Enroll(ctx context.Context, enrollmentURL string, in EnrollRequest) (*EnrollResponse, error) {
	const op = "enroll"
	ctx, span := c.tracer.Start(ctx, "api.Enroll", trace.WithAttributes(attribute.String("tiqr.url.host", hostOf(enrollmentURL))))
	defer span.End()

	form := registrationForm(in.Registration)
	form.Set("secret", in.SecretHex)
	form.Set("operation", "register")

	body, header, err := c.post(ctx, op, enrollmentURL, form)
	if err != nil {
		return nil, c.fail(span, err)
	}

	out := &EnrollResponse{ProtocolVersion: protocolVersion(header)}
	if strings.TrimSpace(string(body)) == "OK" {
		out.Code = CodeSuccess
	} else if err := json.Unmarshal(body, out); err != nil {
		return nil, c.fail(span, newError(ErrorDecode, op, enrollmentURL, err))
	}
	span.SetAttributes(attribute.Int("tiqr.response_code", out.Code))
	return out, nil
}

// Authenticate posts an OCRA response to the provider's authentication URL.
func (c *Client) Authenticate(ctx context.Context, authURL string, in AuthenticateRequest) (*AuthenticateResponse, error) {
	const op = "authenticate"
	ctx, span := c.tracer.Start(ctx, "api.Authenticate", trace.WithAttributes(attribute.String("tiqr.url.host", hostOf(authURL))))
	defer span.End()

	form := registrationForm(in.Registration)
	form.Set("sessionKey", in.SessionKey)
	form.Set("userId", in.UserID)
	form.Set("response", in.Response)
	form.Set("operation", "login")

	body, header, err := c.post(ctx, op, authURL, form)
	if err != nil {
		return nil, c.fail(span, err)
	}

	out, err := decodeAuthenticate(body)
	if err != nil {
		return nil, c.fail(span, newError(ErrorDecode, op, authURL, err))
	}
	out.ProtocolVersion = protocolVersion(header)
	span.SetAttributes(attribute.Int("tiqr.response_code", out.Code))
	return out, nil
}

func (c *Client) post(ctx context.Context, op, target string, form url.Values) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, newError(ErrorInternal, op, target, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, http.Header, error) {
	target := req.URL.Redacted()
	req.Header.Set(ProtocolHeader, strconv.Itoa(c.protocolVersion))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, newError(ErrorTransport, op, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, newError(ErrorTransport, op, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(req.Context(), "tiqr server returned error status",
			"op", op,
			"status", resp.StatusCode,
			"body", string(bytes.TrimSpace(truncate(body, 256))),
		)
		e := newError(ErrorStatus, op, target, nil)
		e.StatusCode = resp.StatusCode
		return nil, nil, e
	}
	return body, resp.Header, nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(GetCategory(err)))
	return err
}

func registrationForm(r Registration) url.Values {
	form := url.Values{}
	form.Set("language", r.Language)
	form.Set("notificationType", r.NotificationType)
	form.Set("notificationAddress", r.NotificationAddress)
	return form
}

// decodeAuthenticate accepts the JSON reply of protocol 2+ servers and the
// plain-text reply of protocol 1 servers ("OK", "INVALID_RESPONSE:2", ...).
func decodeAuthenticate(body []byte) (*AuthenticateResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var out AuthenticateResponse
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	word, arg, hasArg := strings.Cut(string(trimmed), ":")
	out := &AuthenticateResponse{}
	switch word {
	case "OK":
		out.Code = CodeSuccess
	case "INVALID_RESPONSE":
		out.Code = CodeInvalidResponse
	case "INVALID_REQUEST":
		out.Code = CodeInvalidRequest
	case "INVALID_CHALLENGE":
		out.Code = CodeInvalidChallenge
	case "ACCOUNT_BLOCKED":
		out.Code = CodeAccountBlocked
	case "INVALID_USERID":
		out.Code = CodeInvalidUserID
	default:
		return nil, fmt.Errorf("unrecognized response %q", truncate(trimmed, 64))
	}
	if hasArg {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("unrecognized response argument %q", arg)
		}
		switch out.Code {
		case CodeInvalidResponse:
			out.AttemptsLeft = &n
		case CodeAccountBlocked:
			out.Duration = &n
		}
	}
	return out, nil
}

func protocolVersion(h http.Header) int {
	v, err := strconv.Atoi(strings.TrimSpace(h.Get(ProtocolHeader)))
	if err != nil {
		return 0
	}
	return v
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
