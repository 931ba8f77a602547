// package formatter reshapes Spotify API objects into the simplified payloads served by the HTTP routes
package formatter

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/services"
)

// Profile converts a Spotify user into the /user-profile payload.
func Profile(user *services.SpotifyUser) models.ProfilePayload {
	return models.ProfilePayload{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		ProfileURL:  user.ExternalURLs.Spotify,
		Image:       firstImage(user.Images),
	}
}

// TopArtists converts a page of artists, keeping provider order.
func TopArtists(page *services.SpotifyPage[services.SpotifyArtist]) models.TopArtistsPayload {
	out := make([]models.ArtistPayload, 0, len(page.Items))
	for _, a := range page.Items {
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		out = append(out, models.ArtistPayload{
			ID:         a.ID,
			Name:       a.Name,
			Genres:     genres,
			Popularity: a.Popularity,
			Image:      firstImage(a.Images),
		})
	}
	return models.TopArtistsPayload{TopArtists: out}
}

// TopTracks converts a page of tracks, keeping provider order.
func TopTracks(page *services.SpotifyPage[services.SpotifyTrack]) models.TopTracksPayload {
	out := make([]models.TrackPayload, 0, len(page.Items))
	for _, t := range page.Items {
		out = append(out, models.TrackPayload{
			ID:         t.ID,
			Name:       t.Name,
			Artists:    ArtistNames(t.Artists),
			Album:      t.Album.Name,
			Popularity: t.Popularity,
			PreviewURL: t.PreviewURL,
		})
	}
	return models.TopTracksPayload{TopTracks: out}
}

// RecentlyPlayed converts a page of play history items, keeping provider order.
func RecentlyPlayed(page *services.SpotifyPage[services.SpotifyPlayHistory]) models.RecentlyPlayedPayload {
	out := make([]models.PlayedTrackPayload, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, models.PlayedTrackPayload{
			ID:       item.Track.ID,
			Name:     item.Track.Name,
			Artists:  ArtistNames(item.Track.Artists),
			Album:    item.Track.Album.Name,
			PlayedAt: item.PlayedAt,
		})
	}
	return models.RecentlyPlayedPayload{RecentlyPlayed: out}
}

// Playlists wraps a raw playlist page.
func Playlists(raw []byte) (models.PlaylistsPayload, error) {
	if !json.Valid(raw) {
		return models.PlaylistsPayload{}, fmt.Errorf("playlist page is not valid JSON")
	}
	return models.PlaylistsPayload{Playlists: json.RawMessage(raw)}, nil
}

// ArtistNames returns artist names in credit order.
func ArtistNames(artists []services.SpotifyArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// firstImage returns the URL of the first (largest) image, or nil.
func firstImage(images []services.SpotifyImage) *string {
	if len(images) == 0 || images[0].URL == "" {
		return nil
	}
	u := images[0].URL
	return &u
}
