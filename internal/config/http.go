package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"

	CTypeHTML = "text/html"
	CTypeJSON = "application/json"
	CTypeSSE  = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	// MaxImageUpload bounds a pasted image accepted by the HTTP API.
	MaxImageUpload = 32 << 20
)
