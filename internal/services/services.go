// package services defines the [Service] interface for the music provider behind the HTTP routes
//
// Spotify
package services

import (
	"context"

	"github.com/desertthunder/spotstats/internal/models"
)

// Service defines the provider operations the route layer depends on: the authorization-code flow and the
// read endpoints called on behalf of a signed-in user.
type Service interface {
	// AuthURL returns the provider login URL. An empty state is omitted from the URL.
	AuthURL(state string) string

	// Exchange trades a single-use authorization code for a token record.
	Exchange(ctx context.Context, code string) (*models.TokenRecord, error)

	UserProfile(ctx context.Context, record *models.TokenRecord) (*SpotifyUser, error)
	TopArtists(ctx context.Context, record *models.TokenRecord, limit int, timeRange string) (*SpotifyPage[SpotifyArtist], error)
	TopTracks(ctx context.Context, record *models.TokenRecord, limit int, timeRange string) (*SpotifyPage[SpotifyTrack], error)
	RecentlyPlayed(ctx context.Context, record *models.TokenRecord, limit int) (*SpotifyPage[SpotifyPlayHistory], error)

	// UserPlaylists returns the provider's playlist page without decoding it.
	UserPlaylists(ctx context.Context, record *models.TokenRecord, limit, offset int) ([]byte, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}
