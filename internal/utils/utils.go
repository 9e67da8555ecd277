package utils

import (
	"encoding/json"
	"net/http"

	"github.com/jihoonkang/account-api/internal/models"
)

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError renders the machine-readable error code plus a human-readable
// message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	response := models.ErrorResponse{
		Error:   code,
		Message: message,
	}
	WriteJSON(w, status, response)
}
