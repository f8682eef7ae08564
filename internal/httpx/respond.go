// Package httpx writes the JSON envelopes shared by handlers and middleware.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
)

const genericMessage = "something went wrong"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err to a {status, message} response. Operational errors keep
// their message; anything else is logged and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, logger log.FieldLogger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(genericMessage, err)
	}

	body := ErrorBody{Status: "fail", Message: err.Error()}
	if ae.Status >= http.StatusInternalServerError {
		body.Status = "error"
		body.Message = ae.Message
		if logger != nil {
			logger.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			}).WithError(err).Error("request failed")
		}
	}
	JSON(w, ae.Status, body)
}
