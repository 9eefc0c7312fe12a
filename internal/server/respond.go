package server

import (
	"encoding/json"
	"net/http"

	"github.com/Veraticus/gigproof/internal/common"
)

// ErrorResponse is the body of every non-lookup error.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err error) {
	status, code := common.StatusOf(err)
	respondJSON(w, code, ErrorResponse{Status: status, Message: common.MessageOf(err)})
}
