package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
)

var ErrInvalidJSON = errors.New("invalid json body")

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} merged with any extra fields.
func WriteError(w http.ResponseWriter, status int, msg string, extra ...map[string]any) {
	body := map[string]any{"error": msg}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	WriteJSON(w, status, body)
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrInvalidJSON
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}
