// Package routes defines HTTP route constants for the application.
package routes

// API Routes
const (
	RobotsPath = "/robots.txt"

	// SSE
	SSEPath = "/sse"

	// Metrics
	MetricsPath = "/metrics"

	// Editor routes
	PartialsDraftPreview = "/partials/draft/preview"

	// API
	APIDraft   = "/api/draft"
	APIPublish = "/api/publish"
	APIImages  = "/api/images"
	APIGrant   = "/api/grant"
	APIHistory = "/api/history"
	APIRemote  = "/api/remote"
)
