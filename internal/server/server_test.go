package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotstats/internal/metrics"
	"github.com/desertthunder/spotstats/internal/repositories"
	"github.com/desertthunder/spotstats/internal/services"
	"github.com/desertthunder/spotstats/internal/shared"
	tu "github.com/desertthunder/spotstats/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *shared.Config {
	config := shared.DefaultConfig()
	config.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     tu.StubClientID,
		ClientSecret: tu.StubClientSecret,
		RedirectURI:  "http://127.0.0.1:8888/callback",
		Scope:        "user-read-private user-top-read",
	}
	config.Session.Secret = "0123456789abcdef0123456789abcdef"
	config.Server.RateLimit = 0
	return config
}

type testEnv struct {
	stub   *tu.SpotifyStub
	store  *repositories.MemoryStore
	server *Server
}

func newTestEnv(t *testing.T, config *shared.Config) *testEnv {
	t.Helper()

	stub := tu.NewSpotifyStub(t)
	svc, err := services.NewSpotifyService(config.Credentials.Spotify,
		services.WithEndpoints(stub.AuthURL(), stub.TokenURL(), stub.APIURL()))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	store := repositories.NewMemoryStore(config.Session.TTL())
	srv := New(Deps{
		Config:   config,
		Service:  svc,
		Store:    store,
		Gatherer: prometheus.NewRegistry(),
		Logger:   log.New(&strings.Builder{}),
	})

	return &testEnv{stub: stub, store: store, server: srv}
}

// browser replays cookies between requests without following redirects.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, handler: h, cookies: map[string]*http.Cookie{}}
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	b.t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

// login walks the authorization-code flow with code and returns the callback response.
func (b *browser) login(env *testEnv, code string) *httptest.ResponseRecorder {
	b.t.Helper()

	rec := b.get("/")
	if rec.Code != http.StatusFound {
		b.t.Fatalf("expected 302 from /, got %d", rec.Code)
	}
	authURL, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		b.t.Fatalf("invalid authorize url: %v", err)
	}

	env.stub.AddCode(code)
	q := url.Values{"code": {code}, "state": {authURL.Query().Get("state")}}
	return b.get("/callback?" + q.Encode())
}

func location(rec *httptest.ResponseRecorder) string {
	return rec.Header().Get("Location")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, testConfig())

	t.Run("Redirects To Authorize URL", func(t *testing.T) {
		rec := newBrowser(t, env.server).get("/")

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}

		u, err := url.Parse(location(rec))
		if err != nil {
			t.Fatalf("invalid location: %v", err)
		}
		if !strings.HasPrefix(location(rec), env.stub.AuthURL()) {
			t.Errorf("expected redirect to %s, got %s", env.stub.AuthURL(), location(rec))
		}

		q := u.Query()
		if q.Get("client_id") != tu.StubClientID {
			t.Errorf("client_id = %s", q.Get("client_id"))
		}
		if q.Get("redirect_uri") != "http://127.0.0.1:8888/callback" {
			t.Errorf("redirect_uri = %s", q.Get("redirect_uri"))
		}
		if q.Get("scope") != "user-read-private user-top-read" {
			t.Errorf("scope = %s", q.Get("scope"))
		}
		if q.Get("response_type") != "code" {
			t.Errorf("response_type = %s", q.Get("response_type"))
		}
		if q.Get("state") == "" {
			t.Error("expected state parameter")
		}
	})

	t.Run("Sets Session Cookie Without Tokens", func(t *testing.T) {
		rec := newBrowser(t, env.server).get("/")

		var found bool
		for _, c := range rec.Result().Cookies() {
			if c.Name != "spotify_login_session" {
				continue
			}
			found = true
			if !c.HttpOnly {
				t.Error("expected HttpOnly cookie")
			}
			if strings.Contains(c.Value, "access-") {
				t.Error("cookie must not carry tokens")
			}
		}
		if !found {
			t.Error("expected session cookie")
		}
	})
}

func TestCallback(t *testing.T) {
	t.Run("Stores Tokens And Redirects To Landing", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)

		rec := b.login(env, "good-code")

		if rec.Code != http.StatusFound || location(rec) != "/playlists" {
			t.Fatalf("expected 302 to /playlists, got %d %s", rec.Code, location(rec))
		}
		if env.store.Len() != 1 {
			t.Errorf("expected one stored session, got %d", env.store.Len())
		}
		for _, c := range rec.Result().Cookies() {
			if strings.Contains(c.Value, tu.AccessTokenFor("good-code")) {
				t.Error("cookie must not carry the access token")
			}
		}
	})

	t.Run("Rejected Code Redirects Home", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)

		state := stateFrom(t, b.get("/"))
		rec := b.get("/callback?code=unknown&state=" + state)

		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Errorf("expected 302 to /, got %d %s", rec.Code, location(rec))
		}
		if env.store.Len() != 0 {
			t.Errorf("expected no stored session, got %d", env.store.Len())
		}
	})

	t.Run("Missing Code Redirects Home", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)

		state := stateFrom(t, b.get("/"))
		rec := b.get("/callback?state=" + state)

		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Errorf("expected 302 to /, got %d %s", rec.Code, location(rec))
		}
	})

	t.Run("State Mismatch Redirects Home", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.get("/")
		env.stub.AddCode("good-code")

		rec := b.get("/callback?code=good-code&state=forged")

		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Errorf("expected 302 to /, got %d %s", rec.Code, location(rec))
		}
		if env.store.Len() != 0 {
			t.Error("expected no stored session after state mismatch")
		}
	})

	t.Run("Provider Error Returns 401", func(t *testing.T) {
		env := newTestEnv(t, testConfig())

		rec := newBrowser(t, env.server).get("/callback?error=access_denied")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("invalid JSON body: %v", err)
		}
		if !strings.Contains(body["error"], "access_denied") {
			t.Errorf("error = %q", body["error"])
		}
	})

	t.Run("Relogin Replaces Prior Record", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)

		b.login(env, "first")
		b.login(env, "second")

		if env.store.Len() != 1 {
			t.Errorf("expected exactly one stored session, got %d", env.store.Len())
		}

		env.stub.SetJSON(t, "/me", http.StatusOK, map[string]any{"id": "user1"})
		b.get("/user-profile")

		bearers := env.stub.Bearers()
		if len(bearers) == 0 || bearers[len(bearers)-1] != tu.AccessTokenFor("second") {
			t.Errorf("expected latest token to be used, got %v", bearers)
		}
	})
}

func stateFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	u, err := url.Parse(location(rec))
	if err != nil {
		t.Fatalf("invalid location: %v", err)
	}
	return u.Query().Get("state")
}

func TestAuthenticatedRoutes(t *testing.T) {
	routes := []string{"/user-profile", "/user-top-artists", "/user-top-tracks", "/recently-played", "/playlists"}

	t.Run("Without Session Redirects Home", func(t *testing.T) {
		env := newTestEnv(t, testConfig())

		for _, route := range routes {
			rec := newBrowser(t, env.server).get(route)
			if rec.Code != http.StatusFound || location(rec) != "/" {
				t.Errorf("%s: expected 302 to /, got %d %s", route, rec.Code, location(rec))
			}
		}
		if n := len(env.stub.Bearers()); n != 0 {
			t.Errorf("expected no upstream calls, got %d", n)
		}
	})

	t.Run("Forged Cookie Redirects Home", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.cookies["spotify_login_session"] = &http.Cookie{Name: "spotify_login_session", Value: "not-signed"}

		rec := b.get("/user-profile")
		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Errorf("expected 302 to /, got %d %s", rec.Code, location(rec))
		}
	})

	t.Run("Top Tracks", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")
		env.stub.SetJSON(t, "/me/top/tracks", http.StatusOK, tu.TopTracksPage(10))

		rec := b.get("/user-top-tracks")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body struct {
			TopTracks []struct {
				ID      string   `json:"id"`
				Artists []string `json:"artists"`
			} `json:"top_tracks"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(body.TopTracks) != 10 {
			t.Fatalf("expected 10 tracks, got %d", len(body.TopTracks))
		}
		if body.TopTracks[3].ID != "track3" || body.TopTracks[3].Artists[1] != "Feature 3" {
			t.Errorf("unexpected track: %+v", body.TopTracks[3])
		}
	})

	t.Run("User Profile", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")
		env.stub.SetJSON(t, "/me", http.StatusOK, map[string]any{
			"id":            "user1",
			"display_name":  "Test User",
			"email":         "test@example.com",
			"external_urls": map[string]string{"spotify": "https://open.spotify.com/user/user1"},
			"images":        []any{},
		})

		rec := b.get("/user-profile")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Body.String(); !strings.Contains(got, `"image":null`) || !strings.Contains(got, `"display_name":"Test User"`) {
			t.Errorf("unexpected body %s", got)
		}
	})

	t.Run("Playlists Pass Through", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")
		env.stub.SetJSON(t, "/me/playlists", http.StatusOK, map[string]any{"items": []any{map[string]any{"id": "p1"}}, "total": 1})

		rec := b.get("/playlists")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"playlists":{"items":[{"id":"p1"}],"total":1}}` {
			t.Errorf("unexpected body %s", got)
		}
	})

	t.Run("Invalid Query Returns 400", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")

		for _, target := range []string{
			"/user-top-artists?time_range=forever",
			"/recently-played?limit=abc",
			"/user-top-tracks?limit=0",
			"/playlists?limit=51",
			"/playlists?offset=-1",
		} {
			if rec := b.get(target); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", target, rec.Code)
			}
		}
		if calls := len(env.stub.Bearers()); calls != 0 {
			t.Errorf("expected no upstream calls for rejected queries, got %d", calls)
		}
	})

	t.Run("Expired Token Clears Session", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")
		env.stub.ExpireToken(tu.AccessTokenFor("code"))

		rec := b.get("/user-top-tracks")
		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Fatalf("expected 302 to /, got %d %s", rec.Code, location(rec))
		}
		if env.store.Len() != 0 {
			t.Errorf("expected session to be cleared, got %d records", env.store.Len())
		}

		calls := len(env.stub.Bearers())
		rec = b.get("/user-top-tracks")
		if rec.Code != http.StatusFound || location(rec) != "/" {
			t.Errorf("expected follow-up request to redirect, got %d", rec.Code)
		}
		if len(env.stub.Bearers()) != calls {
			t.Error("expected no upstream call once the session is cleared")
		}
	})

	t.Run("Upstream Outage Keeps Session", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		b := newBrowser(t, env.server)
		b.login(env, "code")
		env.stub.SetJSON(t, "/me/player/recently-played", http.StatusServiceUnavailable,
			map[string]any{"error": map[string]any{"status": 503, "message": "Service unavailable"}})

		rec := b.get("/recently-played")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		if env.store.Len() != 1 {
			t.Error("expected session to survive an upstream outage")
		}
	})

	t.Run("Sessions Are Isolated", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		alice := newBrowser(t, env.server)
		bob := newBrowser(t, env.server)
		alice.login(env, "alice")
		bob.login(env, "bob")
		env.stub.SetJSON(t, "/me", http.StatusOK, map[string]any{"id": "someone"})
		env.stub.ExpireToken(tu.AccessTokenFor("alice"))

		if rec := alice.get("/user-profile"); rec.Code != http.StatusFound {
			t.Errorf("expected alice to be signed out, got %d", rec.Code)
		}
		if rec := bob.get("/user-profile"); rec.Code != http.StatusOK {
			t.Errorf("expected bob to be unaffected, got %d", rec.Code)
		}
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, testConfig())
	b := newBrowser(t, env.server)
	b.login(env, "code")

	rec := b.get("/logout")
	if rec.Code != http.StatusFound || location(rec) != "/" {
		t.Fatalf("expected 302 to /, got %d %s", rec.Code, location(rec))
	}
	if env.store.Len() != 0 {
		t.Errorf("expected session to be cleared, got %d", env.store.Len())
	}
	if rec := b.get("/playlists"); rec.Code != http.StatusFound {
		t.Errorf("expected redirect after logout, got %d", rec.Code)
	}
}

func TestAuxiliaryRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())

	t.Run("Healthz", func(t *testing.T) {
		rec := newBrowser(t, env.server).get("/healthz")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
			t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := newBrowser(t, env.server).get("/metrics")
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("RateLimit", func(t *testing.T) {
		h := RateLimit(1, 2)(ok)
		before := testutil.ToFloat64(metrics.RateLimitRejected)

		codes := []int{}
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "198.51.100.7:5555"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}

		if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
			t.Errorf("unexpected codes %v", codes)
		}
		if got := testutil.ToFloat64(metrics.RateLimitRejected) - before; got != 1 {
			t.Errorf("expected one rejection counted, got %v", got)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected other clients to be unaffected, got %d", rec.Code)
		}
	})

	t.Run("ClientLimiter Sweep Forgets Idle Clients", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		limiter := NewClientLimiter(1, 1)
		limiter.now = func() time.Time { return now }

		limiter.Allow("198.51.100.1")
		limiter.Allow("198.51.100.2")
		now = now.Add(5 * time.Minute)
		limiter.Allow("198.51.100.2")

		if got := limiter.Sweep(time.Minute); got != 1 {
			t.Errorf("Sweep() = %d, want 1", got)
		}
		if limiter.Len() != 1 {
			t.Errorf("expected one tracked client, got %d", limiter.Len())
		}
		if !limiter.Allow("198.51.100.1") {
			t.Error("expected a forgotten client to start with a full bucket")
		}
	})

	t.Run("Disabled ClientLimiter", func(t *testing.T) {
		limiter := NewClientLimiter(0, 5)
		if limiter != nil {
			t.Fatal("expected nil limiter for a non-positive rate")
		}
		if limiter.Sweep(time.Minute) != 0 || limiter.Len() != 0 {
			t.Error("expected nil limiter to track nothing")
		}
	})

	t.Run("CORS", func(t *testing.T) {
		h := CORS([]string{"http://localhost:3000"})(ok)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q", got)
		}
	})

	t.Run("Recoverer", func(t *testing.T) {
		h := Recoverer(log.New(&strings.Builder{}))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(errors.New("boom"))
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("RequestLogger Counts Requests", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RequestLogger(log.New(&strings.Builder{})))
		router.Handle(http.MethodGet, "/ping", ok)

		counter := metrics.HTTPRequests.WithLabelValues("/ping", "204")
		before := testutil.ToFloat64(counter)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		if got := testutil.ToFloat64(counter) - before; got != 1 {
			t.Errorf("expected request to be counted once, got %v", got)
		}
	})
}

func TestPruneInterval(t *testing.T) {
	tests := []struct {
		ttl, want time.Duration
	}{
		{0, time.Hour},
		{10 * time.Second, time.Minute},
		{30 * time.Minute, 30 * time.Minute},
		{8 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			if got := pruneInterval(tt.ttl); got != tt.want {
				t.Errorf("pruneInterval(%s) = %s, want %s", tt.ttl, got, tt.want)
			}
		})
	}
}

func TestServerSweep(t *testing.T) {
	config := testConfig()
	config.Server.RateLimit = 10
	config.Server.RateBurst = 10
	env := newTestEnv(t, config)

	now := time.Now()
	env.server.limiter.now = func() time.Time { return now }
	for _, addr := range []string{"192.0.2.10:1000", "192.0.2.11:1000", "192.0.2.12:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = addr
		env.server.ServeHTTP(httptest.NewRecorder(), req)
	}
	if env.server.limiter.Len() != 3 {
		t.Fatalf("expected three tracked clients, got %d", env.server.limiter.Len())
	}

	now = now.Add(limiterIdle + time.Second)
	env.server.sweep(context.Background())

	if env.server.limiter.Len() != 0 {
		t.Errorf("expected idle clients to be forgotten, got %d", env.server.limiter.Len())
	}
}
