// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotstats/internal/metrics"
	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultTimeout = 10 * time.Second
)

// Time ranges accepted by the top items endpoints.
const (
	ShortTerm  = "short_term"
	MediumTerm = "medium_term"
	LongTerm   = "long_term"
)

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	Email        string         `json:"email"`
	Country      string         `json:"country"`
	Product      string         `json:"product"` // premium, free, etc.
	ExternalURLs externalURLs   `json:"external_urls"`
	Images       []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	PreviewURL *string         `json:"preview_url"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist. Simplified artist objects (inside tracks) leave Genres, Images and
// Popularity empty.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Images     []SpotifyImage `json:"images"`
	Popularity int            `json:"popularity"`
	URI        string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPlayHistory is one item of the recently played endpoint.
type SpotifyPlayHistory struct {
	Track    SpotifyTrack `json:"track"`
	PlayedAt string       `json:"played_at"`
}

// SpotifyPage is the paging object wrapping list responses.
type SpotifyPage[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements the [Service] interface for Spotify API interactions.
//
// Requests carry the session's access token as a bearer credential. There is no refresh: an expired or rejected
// token surfaces as [shared.ErrUpstreamAuth].
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	now        func() time.Time
}

// Option customizes a [SpotifyService].
type Option func(*SpotifyService)

// WithHTTPClient sets the client used for the token exchange and API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SpotifyService) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithEndpoints points the service at alternative accounts and API hosts. Empty values keep the defaults.
func WithEndpoints(authURL, tokenURL, apiURL string) Option {
	return func(s *SpotifyService) {
		if authURL != "" {
			s.config.Endpoint.AuthURL = authURL
		}
		if tokenURL != "" {
			s.config.Endpoint.TokenURL = tokenURL
		}
		if apiURL != "" {
			s.baseURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// WithTimeout bounds every upstream round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *SpotifyService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *SpotifyService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSpotifyService creates a new Spotify service from the configured app credentials.
func NewSpotifyService(creds shared.SpotifyConfig, opts ...Option) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingConfig)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingConfig)
	}
	if creds.RedirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingConfig)
	}

	s := &SpotifyService{
		config:  newOAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI, creds.Scopes()),
		baseURL: spotifyBaseURL,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: s.timeout}
	}

	return s, nil
}

func newOAuthConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  spotifyTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// BuildAuthorizationURL returns the Spotify login URL for the given app settings.
//
// The query carries client_id, redirect_uri and scope verbatim (percent-encoded) next to response_type=code.
func BuildAuthorizationURL(clientID, redirectURI, scope string) string {
	return newOAuthConfig(clientID, "", redirectURI, []string{scope}).AuthCodeURL("")
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange performs the server-to-server code exchange.
//
// Every failure, including an empty code, wraps [shared.ErrUpstreamAuth]: the login did not complete.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*models.TokenRecord, error) {
	if strings.TrimSpace(code) == "" {
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeAuth).Inc()
		return nil, fmt.Errorf("%w: authorization code is empty", shared.ErrUpstreamAuth)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			metrics.TokenExchanges.WithLabelValues(metrics.OutcomeAuth).Inc()
			status := 0
			if rErr.Response != nil {
				status = rErr.Response.StatusCode
			}
			return nil, fmt.Errorf("%w: provider rejected code (status %d, %s)", shared.ErrUpstreamAuth, status, rErr.ErrorCode)
		}
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		return nil, fmt.Errorf("%w: token exchange failed: %v", shared.ErrUpstreamAuth, err)
	}

	record := tokenRecord(token)
	if err := record.Validate(); err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamAuth, err)
	}

	metrics.TokenExchanges.WithLabelValues(metrics.OutcomeOK).Inc()
	return record, nil
}

func tokenRecord(token *oauth2.Token) *models.TokenRecord {
	record := &models.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		record.Scope = shared.SplitScope(scope)
	}
	return record
}

// doRequest performs an authenticated GET against the Spotify API and decodes the body into result.
//
// result may be a *[]byte to receive the raw body.
func (s *SpotifyService) doRequest(ctx context.Context, record *models.TokenRecord, name, endpoint string, query url.Values, result any) (err error) {
	defer func() { metrics.UpstreamRequests.WithLabelValues(name, outcome(err)).Inc() }()

	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpstreamAuth, err)
	}
	if record.Expired(s.now()) {
		return fmt.Errorf("%w: %w", shared.ErrUpstreamAuth, shared.ErrTokenExpired)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrAPIRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+record.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, body)
	}

	if raw, ok := result.(*[]byte); ok {
		*raw = body
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// statusError maps a non-2xx Spotify response onto the error taxonomy.
func statusError(status int, body []byte) error {
	msg := http.StatusText(status)
	var parsed spotifyErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", shared.ErrUpstreamAuth, status, msg)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: status %d: %s", shared.ErrUpstreamUnavailable, status, msg)
	default:
		return fmt.Errorf("%w: spotify API error: status %d: %s", shared.ErrAPIRequest, status, msg)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, shared.ErrUpstreamAuth):
		return metrics.OutcomeAuth
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}

// clampLimit bounds limit to the 1..50 range Spotify accepts.
func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 50 {
		return 50
	}
	return limit
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, record *models.TokenRecord) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, record, "profile", "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopArtists retrieves the user's top artists for the given time range.
func (s *SpotifyService) TopArtists(ctx context.Context, record *models.TokenRecord, limit int, timeRange string) (*SpotifyPage[SpotifyArtist], error) {
	var page SpotifyPage[SpotifyArtist]
	if err := s.doRequest(ctx, record, "top_artists", "/me/top/artists", topQuery(limit, timeRange), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopTracks retrieves the user's top tracks for the given time range.
func (s *SpotifyService) TopTracks(ctx context.Context, record *models.TokenRecord, limit int, timeRange string) (*SpotifyPage[SpotifyTrack], error) {
	var page SpotifyPage[SpotifyTrack]
	if err := s.doRequest(ctx, record, "top_tracks", "/me/top/tracks", topQuery(limit, timeRange), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func topQuery(limit int, timeRange string) url.Values {
	if timeRange == "" {
		timeRange = MediumTerm
	}
	return url.Values{
		"limit":      {strconv.Itoa(clampLimit(limit))},
		"time_range": {timeRange},
	}
}

// RecentlyPlayed retrieves the user's most recently played tracks.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, record *models.TokenRecord, limit int) (*SpotifyPage[SpotifyPlayHistory], error) {
	var page SpotifyPage[SpotifyPlayHistory]
	query := url.Values{"limit": {strconv.Itoa(clampLimit(limit))}}
	if err := s.doRequest(ctx, record, "recently_played", "/me/player/recently-played", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UserPlaylists retrieves one page of the current user's playlists as raw JSON.
func (s *SpotifyService) UserPlaylists(ctx context.Context, record *models.TokenRecord, limit, offset int) ([]byte, error) {
	var raw []byte
	query := url.Values{
		"limit":  {strconv.Itoa(clampLimit(limit))},
		"offset": {strconv.Itoa(max(offset, 0))},
	}
	if err := s.doRequest(ctx, record, "playlists", "/me/playlists", query, &raw); err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: playlist page is not valid JSON", shared.ErrAPIRequest)
	}
	return raw, nil
}
