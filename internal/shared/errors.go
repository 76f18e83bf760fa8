package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Mail and page fetching errors
	ErrMailSource = fmt.Errorf("mail source failed")
	ErrNotFound   = fmt.Errorf("page not found")
	ErrNoEmbed    = fmt.Errorf("no embed found")
	ErrHTTP       = fmt.Errorf("HTTP request failed")

	// Document errors
	ErrMalformedDocument = fmt.Errorf("malformed collection document")
	ErrMalformedSnapshot = fmt.Errorf("malformed listened snapshot")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
