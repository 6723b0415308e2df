// Package validation recognizes raw enrollment and authentication challenges.
//
// Every function here is total: malformed input is reported as invalid,
// never as a panic, and nothing touches the network or the store.
package validation

import (
	"net/url"
	"strconv"
	"strings"

	"tiqr/internal/challenge/models"
	pkgstrings "tiqr/pkg/platform/strings"
)

// Validator checks raw challenge strings against the configured schemes,
// path markers and trusted hosts.
type Validator struct {
	cfg models.Config
}

func New(cfg models.Config) *Validator {
	cfg.EnforcedHosts = pkgstrings.DedupeAndTrimLower(cfg.EnforcedHosts)
	return &Validator{cfg: cfg}
}

func (v *Validator) enrollPrefix() string { return v.cfg.EnrollScheme + "://" }
func (v *Validator) authPrefix() string   { return v.cfg.AuthScheme + "://" }

func (v *Validator) hostAllowed(host string) bool {
	if len(v.cfg.EnforcedHosts) == 0 {
		return true
	}
	return pkgstrings.HasHostSuffix(host, v.cfg.EnforcedHosts)
}

// IsValidEnrollment reports whether raw is an enrollment challenge in either
// the legacy scheme form or the https form.
func (v *Validator) IsValidEnrollment(raw string) bool {
	_, ok := v.EnrollmentMetadataURL(raw)
	return ok
}

// EnrollmentMetadataURL returns the metadata URL carried by a valid enrollment challenge.
func (v *Validator) EnrollmentMetadataURL(raw string) (*url.URL, bool) {
	if rest, ok := strings.CutPrefix(raw, v.enrollPrefix()); ok {
		metadata, err := url.Parse(rest)
		if err != nil || !isHTTP(metadata) {
			return nil, false
		}
		if !v.hostAllowed(metadata.Hostname()) {
			return nil, false
		}
		return metadata, true
	}

	outer, err := url.Parse(raw)
	if err != nil || outer.Scheme != "https" || firstSegment(outer) != v.cfg.EnrollPathParam {
		return nil, false
	}
	query, err := url.ParseQuery(outer.RawQuery)
	if err != nil {
		return nil, false
	}
	param := strings.TrimSpace(query.Get("metadata"))
	if param == "" {
		return nil, false
	}
	metadata, err := url.Parse(param)
	if err != nil || !isHTTP(metadata) {
		return nil, false
	}
	if !v.hostAllowed(outer.Hostname()) || !v.hostAllowed(metadata.Hostname()) {
		return nil, false
	}
	return metadata, true
}

// AuthenticationRequest holds the fields of a raw authentication challenge
// before it is resolved against the identity store.
type AuthenticationRequest struct {
	// UserID is empty unless the challenge targets one identity (step-up).
	UserID                    string
	ProviderIdentifier        string
	SessionKey                string
	Challenge                 string
	ServiceProviderIdentifier string
	ProtocolVersion           int
	ReturnURL                 string
}

// IsValidAuthentication reports whether raw is an authentication challenge.
func (v *Validator) IsValidAuthentication(raw string) bool {
	_, ok := v.ParseAuthentication(raw)
	return ok
}

// ParseAuthentication splits a raw authentication challenge into its fields.
//
// Legacy form: <scheme>://[userId@]<provider>/<sessionKey>/<challenge>/<spIdentifier>[/<version>]
// Current form: https://<host>/<path-marker>?u=<userId>&s=<sessionKey>&q=<challenge>&i=<provider>&v=<version>
func (v *Validator) ParseAuthentication(raw string) (AuthenticationRequest, bool) {
	if strings.HasPrefix(raw, v.authPrefix()) {
		return v.parseLegacyAuthentication(raw)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || firstSegment(u) != v.cfg.AuthPathParam {
		return AuthenticationRequest{}, false
	}
	if !v.hostAllowed(u.Hostname()) {
		return AuthenticationRequest{}, false
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return AuthenticationRequest{}, false
	}
	req := AuthenticationRequest{
		UserID:             q.Get("u"),
		SessionKey:         q.Get("s"),
		Challenge:          q.Get("q"),
		ProviderIdentifier: q.Get("i"),
	}
	req.ServiceProviderIdentifier = req.ProviderIdentifier
	version, ok := parseVersion(q.Get("v"))
	if !ok || req.SessionKey == "" || req.Challenge == "" || req.ProviderIdentifier == "" {
		return AuthenticationRequest{}, false
	}
	req.ProtocolVersion = version
	return req, true
}

func (v *Validator) parseLegacyAuthentication(raw string) (AuthenticationRequest, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return AuthenticationRequest{}, false
	}
	if !v.hostAllowed(u.Hostname()) {
		return AuthenticationRequest{}, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 || len(segments) > 4 {
		return AuthenticationRequest{}, false
	}
	req := AuthenticationRequest{
		ProviderIdentifier:        u.Host,
		SessionKey:                segments[0],
		Challenge:                 segments[1],
		ServiceProviderIdentifier: segments[2],
	}
	if u.User != nil {
		req.UserID = u.User.Username()
	}
	var version string
	if len(segments) == 4 {
		version = segments[3]
	}
	ver, ok := parseVersion(version)
	if !ok || req.SessionKey == "" || req.Challenge == "" {
		return AuthenticationRequest{}, false
	}
	req.ProtocolVersion = ver
	if u.RawQuery != "" {
		req.ReturnURL = ReturnURL(u)
	}
	return req, true
}

// ReturnURL extracts the URL-encoded return address some servers append as
// the query of a challenge URL. Returns "" when the query is not a URL.
func ReturnURL(u *url.URL) string {
	if u == nil || u.RawQuery == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(u.RawQuery)
	if err != nil {
		return ""
	}
	ret, err := url.Parse(decoded)
	if err != nil || !isHTTP(ret) {
		return ""
	}
	return ret.String()
}

// parseVersion accepts an absent version as protocol 1.
func parseVersion(s string) (int, bool) {
	if s == "" {
		return 1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func firstSegment(u *url.URL) string {
	path := strings.TrimPrefix(u.Path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
