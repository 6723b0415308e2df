package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiqr/internal/challenge/models"
)

func newValidator(hosts ...string) *Validator {
	cfg := models.DefaultConfig()
	cfg.EnforcedHosts = hosts
	return New(cfg)
}

func TestIsValidEnrollment(t *testing.T) {
	tests := []struct {
		name     string
		hosts    []string
		raw      string
		expected bool
	}{
		{name: "legacy scheme", raw: "tiqrenroll://https://demo.tiqr.org/enroll?key=abc", expected: true},
		{name: "legacy scheme without metadata url", raw: "tiqrenroll://", expected: false},
		{name: "legacy scheme with non http metadata", raw: "tiqrenroll://ftp://demo.tiqr.org/x", expected: false},
		{name: "https form", raw: "https://demo.tiqr.org/tiqrenroll/?metadata=https%3A%2F%2Fdemo.tiqr.org%2Fmeta", expected: true},
		{name: "https form without trailing slash", raw: "https://demo.tiqr.org/tiqrenroll?metadata=https://demo.tiqr.org/meta", expected: true},
		{name: "https form missing metadata", raw: "https://demo.tiqr.org/tiqrenroll/?foo=bar", expected: false},
		{name: "https form blank metadata", raw: "https://demo.tiqr.org/tiqrenroll/?metadata=%20", expected: false},
		{name: "https form wrong path", raw: "https://demo.tiqr.org/other/?metadata=https://demo.tiqr.org/meta", expected: false},
		{name: "plain http outer url", raw: "http://demo.tiqr.org/tiqrenroll/?metadata=https://demo.tiqr.org/meta", expected: false},
		{name: "authentication challenge", raw: "tiqrauth://demo.tiqr.org/s/q/demo.tiqr.org", expected: false},
		{name: "garbage", raw: "%%%:/\x00", expected: false},
		{name: "empty", raw: "", expected: false},
		{name: "trusted host", hosts: []string{"tiqr.org"}, raw: "tiqrenroll://https://demo.tiqr.org/enroll", expected: true},
		{name: "untrusted host", hosts: []string{"tiqr.org"}, raw: "tiqrenroll://https://evil.example/enroll", expected: false},
		{name: "lookalike host", hosts: []string{"tiqr.org"}, raw: "tiqrenroll://https://eviltiqr.org/enroll", expected: false},
		{name: "untrusted metadata host", hosts: []string{"tiqr.org"}, raw: "https://demo.tiqr.org/tiqrenroll/?metadata=https://evil.example/meta", expected: false},
		{name: "untrusted outer host", hosts: []string{"tiqr.org"}, raw: "https://evil.example/tiqrenroll/?metadata=https://demo.tiqr.org/meta", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator(tt.hosts...)
			assert.Equal(t, tt.expected, v.IsValidEnrollment(tt.raw))
		})
	}
}

func TestEnrollmentMetadataURL(t *testing.T) {
	v := newValidator()

	u, ok := v.EnrollmentMetadataURL("https://demo.tiqr.org/tiqrenroll/?metadata=https%3A%2F%2Fdemo.tiqr.org%2Fmeta%3Fkey%3D1")
	require.True(t, ok)
	assert.Equal(t, "https://demo.tiqr.org/meta?key=1", u.String())

	u, ok = v.EnrollmentMetadataURL("tiqrenroll://https://demo.tiqr.org/enroll?key=abc")
	require.True(t, ok)
	assert.Equal(t, "demo.tiqr.org", u.Host)
	assert.Equal(t, "key=abc", u.RawQuery)
}

func TestParseAuthentication(t *testing.T) {
	v := newValidator()

	t.Run("legacy form with user and version", func(t *testing.T) {
		req, ok := v.ParseAuthentication("tiqrauth://alice@demo.tiqr.org/sess123/chal456/sp.example/2")
		require.True(t, ok)
		assert.Equal(t, AuthenticationRequest{
			UserID:                    "alice",
			ProviderIdentifier:        "demo.tiqr.org",
			SessionKey:                "sess123",
			Challenge:                 "chal456",
			ServiceProviderIdentifier: "sp.example",
			ProtocolVersion:           2,
		}, req)
	})

	t.Run("legacy form defaults version to 1", func(t *testing.T) {
		req, ok := v.ParseAuthentication("tiqrauth://demo.tiqr.org/sess/chal/demo.tiqr.org")
		require.True(t, ok)
		assert.Equal(t, 1, req.ProtocolVersion)
		assert.Empty(t, req.UserID)
	})

	t.Run("legacy form with return url", func(t *testing.T) {
		req, ok := v.ParseAuthentication("tiqrauth://demo.tiqr.org/sess/chal/sp?https%3A%2F%2Fsp.example%2Fdone")
		require.True(t, ok)
		assert.Equal(t, "https://sp.example/done", req.ReturnURL)
	})

	t.Run("current form", func(t *testing.T) {
		req, ok := v.ParseAuthentication("https://demo.tiqr.org/tiqrauth/?u=alice&s=sess&q=chal&i=demo.tiqr.org&v=2")
		require.True(t, ok)
		assert.Equal(t, "alice", req.UserID)
		assert.Equal(t, "sess", req.SessionKey)
		assert.Equal(t, "chal", req.Challenge)
		assert.Equal(t, "demo.tiqr.org", req.ProviderIdentifier)
		assert.Equal(t, "demo.tiqr.org", req.ServiceProviderIdentifier)
		assert.Equal(t, 2, req.ProtocolVersion)
	})

	invalid := []string{
		"",
		"tiqrauth://",
		"tiqrauth://demo.tiqr.org/sess",
		"tiqrauth://demo.tiqr.org/sess/chal",
		"tiqrauth://demo.tiqr.org/sess/chal/sp/2/extra",
		"tiqrauth://demo.tiqr.org/sess/chal/sp/two",
		"tiqrauth://demo.tiqr.org/sess/chal/sp/0",
		"https://demo.tiqr.org/tiqrauth/?u=alice&q=chal&i=demo.tiqr.org",
		"https://demo.tiqr.org/tiqrauth/?s=sess&q=chal",
		"https://demo.tiqr.org/other/?s=sess&q=chal&i=demo.tiqr.org",
		"tiqrenroll://https://demo.tiqr.org/enroll",
		"%zz",
	}
	for _, raw := range invalid {
		t.Run("rejects "+raw, func(t *testing.T) {
			assert.False(t, v.IsValidAuthentication(raw))
		})
	}
}

func TestParseAuthenticationEnforcedHosts(t *testing.T) {
	v := newValidator("tiqr.org")

	assert.True(t, v.IsValidAuthentication("tiqrauth://demo.tiqr.org/sess/chal/sp"))
	assert.False(t, v.IsValidAuthentication("tiqrauth://evil.example/sess/chal/sp"))
	assert.False(t, v.IsValidAuthentication("https://evil.example/tiqrauth/?s=sess&q=chal&i=demo.tiqr.org"))
}

func TestReturnURL(t *testing.T) {
	assert.Empty(t, ReturnURL(nil))
}
