package server

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	body := errorBody{
		Code:    string(code),
		Message: err.Error(),
		Details: apperrors.MetadataOf(err),
	}
	writeJSON(w, code.HTTPStatus(), errorEnvelope{Error: body})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	if err := decoder.Decode(target); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidRequest, "decode request body", err))
		return false
	}
	return true
}
