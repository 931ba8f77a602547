package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotstats/internal/formatter"
	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/repositories"
	"github.com/desertthunder/spotstats/internal/services"
	"github.com/desertthunder/spotstats/internal/shared"
)

const (
	defaultLimit     = 10
	maxLimit         = 50
	defaultTimeRange = services.MediumTerm
	defaultLanding   = "/playlists"
)

var timeRanges = map[string]bool{services.ShortTerm: true, services.MediumTerm: true, services.LongTerm: true}

// SpotifyHandler serves the login flow and the authenticated read routes.
type SpotifyHandler struct {
	service  services.Service
	store    repositories.TokenStore
	sessions *SessionManager
	landing  string
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewSpotifyHandler creates a handler that redirects to landing after a successful login.
func NewSpotifyHandler(svc services.Service, store repositories.TokenStore, sm *SessionManager, landing string, logger *log.Logger) *SpotifyHandler {
	if landing == "" {
		landing = defaultLanding
	}
	h := &SpotifyHandler{
		service:  svc,
		store:    store,
		sessions: sm,
		landing:  landing,
		logger:   shared.WithLogger(logger, "handler", "spotify"),
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /{$}", h.Login)
	h.mux.HandleFunc("GET /callback", h.Callback)
	h.mux.HandleFunc("GET /logout", h.Logout)
	h.mux.HandleFunc("GET /user-profile", h.authenticated(h.userProfile))
	h.mux.HandleFunc("GET /user-top-artists", h.authenticated(h.topArtists))
	h.mux.HandleFunc("GET /user-top-tracks", h.authenticated(h.topTracks))
	h.mux.HandleFunc("GET /recently-played", h.authenticated(h.recentlyPlayed))
	h.mux.HandleFunc("GET /playlists", h.authenticated(h.playlists))

	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *SpotifyHandler) Routes() []string {
	return []string{
		"/", "/callback", "/logout",
		"/user-profile", "/user-top-artists", "/user-top-tracks", "/recently-played", "/playlists",
	}
}

// ServeHTTP dispatches to the route handlers.
func (h *SpotifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Login starts the authorization-code flow: any record behind the current cookie is cleared, a fresh
// state is stored in the cookie and the browser is sent to the provider.
func (h *SpotifyHandler) Login(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.sessions.SessionID(r); ok {
		if err := h.store.Clear(r.Context(), id); err != nil {
			h.logger.Warn("failed to clear session", "error", err)
		}
	}

	state := shared.GenerateID()
	if err := h.sessions.BeginLogin(w, r, state); err != nil {
		h.logger.Error("failed to save session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.Redirect(w, r, h.service.AuthURL(state), http.StatusFound)
}

// Callback exchanges the authorization code, stores the tokens under a new session id and redirects to
// the landing route. A provider error parameter gets a 401; every other failure restarts the login.
func (h *SpotifyHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		h.logger.Warn("authorization denied", "reason", reason)
		writeError(w, http.StatusUnauthorized, "authorization denied: "+reason)
		return
	}

	want := h.sessions.State(r)
	if want == "" || query.Get("state") != want {
		h.logger.Warn("callback rejected", "error", shared.ErrInvalidState)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if id, ok := h.sessions.SessionID(r); ok {
		_ = h.store.Clear(ctx, id)
	}

	record, err := h.service.Exchange(ctx, query.Get("code"))
	if err != nil {
		h.logger.Warn("token exchange failed", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	sessionID := shared.GenerateID()
	if err := h.store.Put(ctx, sessionID, record); err != nil {
		h.logger.Error("failed to store tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store session")
		return
	}
	if err := h.sessions.Authenticate(w, r, sessionID); err != nil {
		_ = h.store.Clear(ctx, sessionID)
		h.logger.Error("failed to save session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	h.logger.Info("signed in", "scope", record.ScopeString())
	http.Redirect(w, r, h.landing, http.StatusFound)
}

// Logout clears the stored record and expires the cookie.
func (h *SpotifyHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.sessions.SessionID(r); ok {
		if err := h.store.Clear(r.Context(), id); err != nil {
			h.logger.Warn("failed to clear session", "error", err)
		}
	}
	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Warn("failed to expire cookie", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

type recordHandler func(ctx context.Context, r *http.Request, record *models.TokenRecord) (any, error)

// authenticated loads the caller's token record and renders the payload returned by next.
func (h *SpotifyHandler) authenticated(next recordHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessionID, ok := h.sessions.SessionID(r)
		if !ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		record, err := h.store.Get(ctx, sessionID)
		if errors.Is(err, shared.ErrSessionNotFound) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		} else if err != nil {
			h.logger.Error("failed to load session", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}

		payload, err := next(ctx, r, record)
		if err != nil {
			h.fail(w, r, sessionID, err)
			return
		}

		writeJSON(w, http.StatusOK, payload)
	}
}

// fail maps a route error to a response. Rejected credentials end the session.
func (h *SpotifyHandler) fail(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrUpstreamAuth):
		h.logger.Info("credentials rejected, ending session", "path", r.URL.Path, "error", err)
		if clearErr := h.store.Clear(r.Context(), sessionID); clearErr != nil {
			h.logger.Warn("failed to clear session", "error", clearErr)
		}
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, shared.ErrUpstreamUnavailable), errors.Is(err, shared.ErrAPIRequest):
		h.logger.Warn("upstream request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *SpotifyHandler) userProfile(ctx context.Context, _ *http.Request, record *models.TokenRecord) (any, error) {
	user, err := h.service.UserProfile(ctx, record)
	if err != nil {
		return nil, err
	}
	return formatter.Profile(user), nil
}

func (h *SpotifyHandler) topArtists(ctx context.Context, r *http.Request, record *models.TokenRecord) (any, error) {
	limit, timeRange, err := topParams(r)
	if err != nil {
		return nil, err
	}
	page, err := h.service.TopArtists(ctx, record, limit, timeRange)
	if err != nil {
		return nil, err
	}
	return formatter.TopArtists(page), nil
}

func (h *SpotifyHandler) topTracks(ctx context.Context, r *http.Request, record *models.TokenRecord) (any, error) {
	limit, timeRange, err := topParams(r)
	if err != nil {
		return nil, err
	}
	page, err := h.service.TopTracks(ctx, record, limit, timeRange)
	if err != nil {
		return nil, err
	}
	return formatter.TopTracks(page), nil
}

func (h *SpotifyHandler) recentlyPlayed(ctx context.Context, r *http.Request, record *models.TokenRecord) (any, error) {
	limit, err := limitParam(r)
	if err != nil {
		return nil, err
	}
	page, err := h.service.RecentlyPlayed(ctx, record, limit)
	if err != nil {
		return nil, err
	}
	return formatter.RecentlyPlayed(page), nil
}

func (h *SpotifyHandler) playlists(ctx context.Context, r *http.Request, record *models.TokenRecord) (any, error) {
	limit, err := limitParam(r)
	if err != nil {
		return nil, err
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return nil, err
	}
	raw, err := h.service.UserPlaylists(ctx, record, limit, offset)
	if err != nil {
		return nil, err
	}
	payload, err := formatter.Playlists(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return payload, nil
}

func topParams(r *http.Request) (int, string, error) {
	limit, err := limitParam(r)
	if err != nil {
		return 0, "", err
	}
	timeRange := r.URL.Query().Get("time_range")
	if timeRange == "" {
		timeRange = defaultTimeRange
	}
	if !timeRanges[timeRange] {
		return 0, "", fmt.Errorf("%w: time_range must be short_term, medium_term or long_term", shared.ErrInvalidInput)
	}
	return limit, timeRange, nil
}

// limitParam reads limit, which must fall in 1..maxLimit when present.
func limitParam(r *http.Request) (int, error) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", shared.ErrInvalidInput, maxLimit)
	}
	return limit, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", shared.ErrInvalidInput, name)
	}
	return n, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorPayload{Error: msg})
}
