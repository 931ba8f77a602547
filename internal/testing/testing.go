// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Credentials accepted by [SpotifyStub]'s token endpoint.
const (
	StubClientID     = "test_client_id"
	StubClientSecret = "test_client_secret"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

type stubResponse struct {
	status int
	body   []byte
}

// SpotifyStub fakes the Spotify accounts and Web API hosts.
//
// The token endpoint accepts each registered code once. API paths answer with whatever was registered through
// [SpotifyStub.SetJSON]; tokens registered with [SpotifyStub.ExpireToken] get a 401.
type SpotifyStub struct {
	*httptest.Server

	Scope string

	mu        sync.Mutex
	codes     map[string]bool
	expired   map[string]bool
	responses map[string]stubResponse
	bearers   []string
}

// NewSpotifyStub starts a stub server that is closed when the test ends.
func NewSpotifyStub(t *testing.T) *SpotifyStub {
	t.Helper()

	s := &SpotifyStub{
		Scope:     "user-read-private user-top-read",
		codes:     map[string]bool{},
		expired:   map[string]bool{},
		responses: map[string]stubResponse{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.token)
	mux.HandleFunc("/v1/", s.api)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// AuthURL, TokenURL and APIURL are the stub equivalents of the Spotify endpoints.
func (s *SpotifyStub) AuthURL() string  { return s.URL + "/authorize" }
func (s *SpotifyStub) TokenURL() string { return s.URL + "/api/token" }
func (s *SpotifyStub) APIURL() string   { return s.URL + "/v1" }

// AddCode registers a single-use authorization code.
func (s *SpotifyStub) AddCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = true
}

// AccessTokenFor returns the access token the stub issues for code.
func AccessTokenFor(code string) string {
	return "access-" + code
}

// ExpireToken makes every API call with the given access token fail with 401.
func (s *SpotifyStub) ExpireToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired[accessToken] = true
}

// SetJSON registers the response for an API path such as "/me".
func (s *SpotifyStub) SetJSON(t *testing.T, path string, status int, body any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal stub body: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = stubResponse{status: status, body: data}
}

// Bearers returns the access tokens presented to the API, in order.
func (s *SpotifyStub) Bearers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bearers...)
}

func (s *SpotifyStub) token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, secret, ok := r.BasicAuth()
	if !ok || id != StubClientID || secret != StubClientSecret {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"Invalid client"}`)
		return
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		return
	}

	code := r.PostForm.Get("code")
	s.mu.Lock()
	valid := s.codes[code]
	delete(s.codes, code)
	s.mu.Unlock()

	if !valid {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  AccessTokenFor(code),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + code,
		"scope":         s.Scope,
	})
}

func (s *SpotifyStub) api(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	path := strings.TrimPrefix(r.URL.Path, "/v1")

	s.mu.Lock()
	s.bearers = append(s.bearers, bearer)
	expired := s.expired[bearer]
	resp, ok := s.responses[path]
	s.mu.Unlock()

	switch {
	case bearer == "":
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"No token provided"}}`)
	case expired:
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":404,"message":"Service not found"}}`)
	default:
		w.WriteHeader(resp.status)
		w.Write(resp.body)
	}
}

// TopTracksPage builds a /me/top/tracks body with n tracks, each credited to two artists.
func TopTracksPage(n int) map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{
			"id":   fmt.Sprintf("track%d", i),
			"name": fmt.Sprintf("Song %d", i),
			"artists": []map[string]any{
				{"id": fmt.Sprintf("lead%d", i), "name": fmt.Sprintf("Lead %d", i)},
				{"id": fmt.Sprintf("feat%d", i), "name": fmt.Sprintf("Feature %d", i)},
			},
			"album":       map[string]any{"id": fmt.Sprintf("album%d", i), "name": fmt.Sprintf("Album %d", i)},
			"popularity":  90 - i,
			"preview_url": nil,
		})
	}
	return map[string]any{"items": items, "total": n, "limit": n, "offset": 0}
}
