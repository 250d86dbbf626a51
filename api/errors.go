package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/ratelimit"
	"github.com/sora-grayscale/splitvault/storage"
	"github.com/sora-grayscale/splitvault/twofactor"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeRateLimited sends a 429 with a Retry-After hint.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many attempts; try again later")
}

func mapError(w http.ResponseWriter, err error) {
	var limited *ratelimit.LimitedError
	switch {
	case errors.As(err, &limited):
		writeRateLimited(w, limited.RetryAfter)
	case errors.Is(err, twofactor.ErrVerificationFailed):
		// Deliberately vague: never say whether the token was expired,
		// wrong, or an already-used backup code.
		writeError(w, http.StatusUnauthorized, "invalid code")
	case errors.Is(err, twofactor.ErrNotConfigured):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, twofactor.ErrAlreadyEnabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, crypto.ErrInvalidKeyFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

const maxBodySize = 1 << 20

// decodeJSON reads and decodes a JSON request body with a size cap.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return v, false
	}
	return v, true
}
