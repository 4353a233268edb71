package routes

import (
	"encoding/json"
	"net/http"

	"github.com/coah80/vidfix/internal/util"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes the classified status for err with its user-facing
// message. Server errors also carry details.
func respondError(w http.ResponseWriter, err error) {
	status := util.StatusFor(err)
	body := map[string]string{"error": util.ToUserError(err)}
	if status >= http.StatusInternalServerError {
		body["details"] = util.ErrorDetails(err)
	}
	respondJSON(w, status, body)
}
