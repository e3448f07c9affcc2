// Package httputil centralizes JSON encoding and domain error translation for handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "outbreak/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the JSON error envelope. Errors that are not domain
// errors are reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:            string(dErrors.CodeInternal),
			ErrorDescription: "internal error",
		})
		return
	}
	resp := ErrorResponse{
		Error:            string(de.Code),
		ErrorDescription: de.Message,
		Fields:           de.Fields,
	}
	if de.Code == dErrors.CodeInternal {
		resp.ErrorDescription = "internal error"
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), resp)
}

// DecodeJSON decodes a JSON body into T, rejecting unknown fields and trailing data.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	if r.Body == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var v T
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if dec.More() {
		return nil, dErrors.Wrap(errors.New("trailing data"), dErrors.CodeBadRequest, "invalid request body")
	}
	return &v, nil
}
