// Package models defines the token record kept per browser session and the JSON payloads served by the HTTP routes.
//
// [TokenRecord] is the only entity with invariants: it is created by the token exchange, owned by the session
// store, read-only afterwards, and stale once [TokenRecord.Expired] reports true.
//
// The payload types ([ProfilePayload], [ArtistPayload], [TrackPayload], [PlayedTrackPayload]) are the simplified
// shapes the routes return. They carry snake_case JSON tags matching the public API.
package models
