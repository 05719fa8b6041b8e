package httputils

import (
	"encoding/json"
	"net/http"

	"parley/parley/utils/errs"
	"parley/parley/utils/types"
)

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch errs.Code(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "unauthorized":
		return http.StatusUnauthorized
	case "responder":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes the {"error","code"} body. Store failures are reported
// without their cause.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = errs.ErrStore.Error()
	}
	WriteJSON(w, status, types.ErrorResponse{Error: msg, Code: errs.Code(err)})
}
