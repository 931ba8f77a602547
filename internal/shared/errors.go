package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Session errors
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrInvalidState    = fmt.Errorf("invalid state parameter")

	// Upstream errors
	ErrUpstreamAuth        = fmt.Errorf("upstream rejected credentials")
	ErrUpstreamUnavailable = fmt.Errorf("upstream unavailable")
	ErrTokenExpired        = fmt.Errorf("access token expired")
	ErrAPIRequest          = fmt.Errorf("API request failed")

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
)
