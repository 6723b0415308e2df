// Package apitest runs an in-process tiqr server for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"tiqr/internal/api"
)

const (
	MetadataPath = "/tiqrenroll/metadata"
	EnrollPath   = "/tiqrenroll/register"
	AuthPath     = "/tiqrauth/login"
)

// Server is a scripted tiqr server. Zero values reply with success.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	metadata        *api.Metadata
	metadataStatus  int
	enrollBody      string
	enrollVersion   int
	authBody        string
	authVersion     int
	enrollForms     []url.Values
	authForms       []url.Values
	protocolHeaders []string
}

// New starts a server and stops it when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{enrollVersion: 2, authVersion: 2}

	r := chi.NewRouter()
	r.Get(MetadataPath, s.handleMetadata)
	r.Post(EnrollPath, s.handleEnroll)
	r.Post(AuthPath, s.handleAuthenticate)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	s.metadata = s.DefaultMetadata()
	return s
}

// DefaultMetadata describes a provider whose endpoints live on this server.
func (s *Server) DefaultMetadata() *api.Metadata {
	return &api.Metadata{
		Service: api.ServiceMetadata{
			DisplayName:       "Demo IdP",
			Identifier:        "demo.tiqr.org",
			AuthenticationURL: s.URL + AuthPath,
			OCRASuite:         "OCRA-1:HOTP-SHA1-6:QH10-S",
			InfoURL:           "https://demo.tiqr.org/info",
			LogoURL:           "https://demo.tiqr.org/logo.png",
			EnrollmentURL:     s.URL + EnrollPath + "?key=abc",
		},
		Identity: api.IdentityMetadata{
			DisplayName: "Alice",
			Identifier:  "alice",
		},
	}
}

func (s *Server) MetadataURL() string { return s.URL + MetadataPath }

func (s *Server) SetMetadata(m *api.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = m
}

// SetMetadataStatus makes the metadata endpoint fail with status.
func (s *Server) SetMetadataStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataStatus = status
}

// SetEnrollResponse sets the raw enrollment reply and protocol header value.
// A version of 0 omits the header.
func (s *Server) SetEnrollResponse(body string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollBody = body
	s.enrollVersion = version
}

// SetEnrollCode replies to enrollment with {"responseCode": code}.
func (s *Server) SetEnrollCode(code, version int) {
	s.SetEnrollResponse(`{"responseCode":`+strconv.Itoa(code)+`}`, version)
}

// SetAuthResponse sets the raw authentication reply.
func (s *Server) SetAuthResponse(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authBody = body
}

func (s *Server) EnrollForms() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.enrollForms...)
}

func (s *Server) AuthForms() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.authForms...)
}

// ProtocolHeaders lists the protocol version header of every request received.
func (s *Server) ProtocolHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.protocolHeaders...)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.protocolHeaders = append(s.protocolHeaders, r.Header.Get(api.ProtocolHeader))
	m, status := s.metadata, s.metadataStatus
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.protocolHeaders = append(s.protocolHeaders, r.Header.Get(api.ProtocolHeader))
	s.enrollForms = append(s.enrollForms, r.PostForm)
	body, version := s.enrollBody, s.enrollVersion
	s.mu.Unlock()

	if body == "" {
		body = `{"responseCode":1}`
	}
	if version != 0 {
		w.Header().Set(api.ProtocolHeader, strconv.Itoa(version))
	}
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.protocolHeaders = append(s.protocolHeaders, r.Header.Get(api.ProtocolHeader))
	s.authForms = append(s.authForms, r.PostForm)
	body, version := s.authBody, s.authVersion
	s.mu.Unlock()

	if body == "" {
		body = `{"responseCode":1}`
	}
	w.Header().Set(api.ProtocolHeader, strconv.Itoa(version))
	_, _ = w.Write([]byte(body))
}
