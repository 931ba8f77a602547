// Package server provides the HTTP surface of the Spotify stats service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [Middleware] wraps handlers in reverse
// order (last added executes first). [BasicRouter] uses [http.ServeMux] internally with method filtering.
//
// [Server] installs, outermost first: [Recoverer], [RequestLogger], [CORS] and [RateLimit].
//
// # Sessions
//
// [SessionManager] keeps a signed cookie holding only an opaque session id, plus the OAuth state while a
// login is in flight. Access and refresh tokens live in a [repositories.TokenStore] keyed by that id.
//
// # Routes
//
// [SpotifyHandler] serves:
//   - / redirects to the Spotify authorize page
//   - /callback exchanges the code and signs the browser in
//   - /logout ends the session
//   - /user-profile, /user-top-artists, /user-top-tracks, /recently-played and /playlists return JSON
//
// Authenticated routes redirect to / when no record exists or when Spotify rejects the stored token (the record
// is cleared first). Upstream outages return 502 and keep the session.
package server
