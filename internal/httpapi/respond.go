package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"justping.io/internal/auth"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// respondDomainError maps the auth error taxonomy onto HTTP status codes.
// Unexpected errors become a generic 500; internal detail never reaches the
// client.
func (a *API) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid):
		respondError(w, http.StatusUnauthorized, safeMessage(err, "invalid credentials"))
	case errors.Is(err, auth.ErrForbidden):
		respondError(w, http.StatusForbidden, safeMessage(err, "forbidden"))
	case errors.Is(err, auth.ErrNotFound):
		respondError(w, http.StatusNotFound, safeMessage(err, "not found"))
	case errors.Is(err, auth.ErrConflict):
		respondError(w, http.StatusConflict, safeMessage(err, "conflict"))
	case errors.Is(err, auth.ErrServiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		a.log.Errorw("unexpected error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// safeMessage keeps sentinel-wrapped messages, which are written for
// clients, and suppresses anything else.
func safeMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// validationMessage flattens validator errors into one client-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		switch first.Tag() {
		case "required":
			return first.Field() + " is required"
		case "email":
			return first.Field() + " must be a valid email address"
		default:
			return first.Field() + " is invalid"
		}
	}
	return "invalid request payload"
}
