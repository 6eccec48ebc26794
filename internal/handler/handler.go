// Package handler provides HTTP request handlers for the sweets API.
package handler

// Version is the application version.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// WelcomeMessage is served at the API root.
const WelcomeMessage = "Welcome to the Sweet Shop API! Access /sweets for operations."
