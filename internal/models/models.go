package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenRecord holds the credentials granted to one browser session.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        []string  `json:"scope,omitempty"`
}

// Validate checks that the record carries an access token.
func (t *TokenRecord) Validate() error {
	if t == nil || t.AccessToken == "" {
		return fmt.Errorf("token record: access token is required")
	}
	return nil
}

// Expired reports whether now is past ExpiresAt. A zero ExpiresAt never expires.
func (t *TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// HasScope reports whether scope was granted.
func (t *TokenRecord) HasScope(scope string) bool {
	for _, s := range t.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopeString joins the granted scopes with spaces, the wire format used by the provider.
func (t *TokenRecord) ScopeString() string {
	return strings.Join(t.Scope, " ")
}

// ProfilePayload is the body of GET /user-profile.
type ProfilePayload struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	ProfileURL  string  `json:"profile_url"`
	Image       *string `json:"image"`
}

// ArtistPayload is one entry of GET /user-top-artists.
type ArtistPayload struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	Image      *string  `json:"image"`
}

// TrackPayload is one entry of GET /user-top-tracks.
type TrackPayload struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	Popularity int      `json:"popularity"`
	PreviewURL *string  `json:"preview_url"`
}

// PlayedTrackPayload is one entry of GET /recently-played.
type PlayedTrackPayload struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Album    string   `json:"album"`
	PlayedAt string   `json:"played_at"`
}

// TopArtistsPayload wraps the top artists list.
type TopArtistsPayload struct {
	TopArtists []ArtistPayload `json:"top_artists"`
}

// TopTracksPayload wraps the top tracks list.
type TopTracksPayload struct {
	TopTracks []TrackPayload `json:"top_tracks"`
}

// RecentlyPlayedPayload wraps the recently played list.
type RecentlyPlayedPayload struct {
	RecentlyPlayed []PlayedTrackPayload `json:"recently_played"`
}

// PlaylistsPayload passes the provider's playlist page through untouched.
type PlaylistsPayload struct {
	Playlists json.RawMessage `json:"playlists"`
}

// ErrorPayload is the body of every JSON error response.
type ErrorPayload struct {
	Error string `json:"error"`
}
