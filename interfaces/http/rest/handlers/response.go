package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   bool                   `json:"error"`
	Message string                 `json:"message"`
	Code    int                    `json:"code"`
	Type    string                 `json:"type,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: true, Message: message, Code: status})
}

// respondAppError writes err with its own status. Server-side failures are
// logged, caller errors are not.
func respondAppError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status := appErrors.HTTPStatus(err)
	appErr := appErrors.GetAppError(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	}
	if appErr == nil {
		respondError(w, status, "Internal server error")
		return
	}

	body := ErrorResponse{
		Error:   true,
		Message: appErr.Message,
		Code:    status,
		Type:    string(appErr.Type),
	}
	if appErr.Type == appErrors.ErrorTypeValidation || appErr.Type == appErrors.ErrorTypeNotFound {
		body.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError {
		// Transport details stay in the logs
		body.Message = http.StatusText(status)
	}
	respondJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
