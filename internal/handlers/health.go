package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Clients int    `json:"clients"`
}

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthCheck handles GET /health
// Returns the relay's health status and the number of realtime connections.
func HealthCheck(clients ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Message: "Talkie relay is running",
			Clients: clients.ClientCount(),
		})
	}
}
