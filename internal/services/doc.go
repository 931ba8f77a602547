// Package services defines the [Service] interface for the music provider and implements it for Spotify.
//
// # Authorization-code flow
//
// [BuildAuthorizationURL] and [SpotifyService.AuthURL] produce the login URL from the configured client id,
// redirect URI and scope. [SpotifyService.Exchange] trades the code Spotify sends back for a
// [models.TokenRecord]; it never touches the session store.
//
// # Read endpoints
//
// Each read call takes the session's token record and sends its access token as a bearer credential.
// Nothing is cached or retried, and tokens are never refreshed: the [oauth2] auto-refreshing client is
// deliberately not used.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrUpstreamAuth] : code rejected, token expired or revoked (401/403)
//   - [shared.ErrUpstreamUnavailable] : network failure, timeout, 429 or 5xx
//   - [shared.ErrAPIRequest] : any other non-2xx or an undecodable body
package services
